package handling

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"time"

	"escqrs/pkg/esdb"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

func eventTypeOf(event any) reflect.Type { return reflect.TypeOf(event) }

// Processor runs the main event-handling loop for one (group, partition).
type Processor struct {
	config    GroupConfig
	partition int
	logger    *log.Logger
}

// NewProcessor builds a processor for one partition of config.Partitions.
func NewProcessor(config GroupConfig, partition int) *Processor {
	config = config.withDefaults()
	return &Processor{config: config, partition: partition, logger: log.Default()}
}

// StartGroup launches one Processor per partition in config, together
// covering {0..N-1}. It returns once every
// processor's Run has returned (normally only on ctx cancellation or a
// non-transient error escalated past a processor's lifecycle controller).
func StartGroup(ctx context.Context, config GroupConfig) error {
	config = config.withDefaults()
	group, groupCtx := errgroup.WithContext(ctx)
	for partition := 0; partition < config.Partitions; partition++ {
		processor := NewProcessor(config, partition)
		group.Go(func() error { return processor.Run(groupCtx) })
	}
	return group.Wait()
}

// Run hands control to the group's lifecycle controller, which invokes
// the processor's restart loop whenever this instance is entitled to
// run (immediately for PlainLifecycleController, only while leader for
// RedisLeaderElector).
func (p *Processor) Run(ctx context.Context) error {
	return p.config.Lifecycle.Run(ctx, p.restartLoop)
}

// restartLoop implements step 4: on unexpected stream termination (a
// TransportError from observe) or a transient error, wait per the backoff
// policy and restart at step 2. Any other non-transient error escalates
// immediately to the caller (Run's LifecycleController), which may stop
// the partition, instead of being retried forever.
func (p *Processor) restartLoop(ctx context.Context) error {
	backoffCtl := p.config.Retry.newBackOff()
	for {
		err := p.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !IsTransient(err) && !esdb.IsTransport(err) {
			p.logger.Printf("handling: group=%s partition=%d escalating non-transient error: %v", p.config.Name, p.partition, err)
			return err
		}
		if err == nil {
			// Observe is never expected to terminate normally; treat it
			// as abnormal and restart.
			err = fmt.Errorf("observe stream for group %s partition %d terminated normally", p.config.Name, p.partition)
		}
		p.logger.Printf("handling: group=%s partition=%d restarting after error: %v", p.config.Name, p.partition, err)
		wait := backoffCtl.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (p *Processor) runOnce(ctx context.Context) error {
	key := ProgressKey{Group: p.config.Name, Partition: p.partition}
	checkpoint, found, err := p.config.ProgressTracker.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	var options []esdb.Option
	if p.config.FetchRecursive != nil && *p.config.FetchRecursive {
		options = append(options, esdb.WithRecursive())
	}
	if found {
		options = append(options, esdb.WithLowerBoundExclusive(checkpoint))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	workers := newSequenceWorkers(groupCtx, group, p.dispatchAndCheckpoint)
	defer workers.closeAll()

	observeErr := p.config.Client.Observe(groupCtx, p.config.FetchSubject, options, func(rawEvent esdb.Event) error {
		seqKey := p.config.SequenceResolver.SequenceKey(rawEvent)
		if partitionFor(seqKey, p.config.Partitions) != p.partition {
			return nil
		}
		return workers.submit(seqKey, rawEvent)
	})

	workers.closeAll()
	if groupErr := group.Wait(); groupErr != nil {
		return groupErr
	}
	return observeErr
}

// dispatchAndCheckpoint resolves and invokes every matching handler in
// registration order, retrying the same event on transient failure per
// the group's backoff policy, and advances the checkpoint on success.
func (p *Processor) dispatchAndCheckpoint(ctx context.Context, rawEvent esdb.Event) error {
	backoffCtl := p.config.Retry.newBackOff()
	for {
		err := p.dispatch(rawEvent)
		if err == nil {
			return p.config.ProgressTracker.Store(ctx, ProgressKey{Group: p.config.Name, Partition: p.partition}, rawEvent.ID)
		}
		if !IsTransient(err) {
			return err
		}
		wait := backoffCtl.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (p *Processor) dispatch(rawEvent esdb.Event) error {
	resolved, err := p.config.Resolver.Resolve(rawEvent)
	if err != nil {
		return err
	}
	for _, re := range resolved {
		eventType := eventTypeOf(re.Event)
		for _, handler := range p.config.Handlers {
			if eventType == nil || !eventType.AssignableTo(handler.EventType) {
				continue
			}
			if err := handler.fn(rawEvent, re.Event, re.MetaData); err != nil {
				return err
			}
		}
	}
	return nil
}
