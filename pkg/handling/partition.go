package handling

import (
	"context"
	"sync"

	"escqrs/pkg/esdb"
	"golang.org/x/sync/errgroup"
)

// sequenceWorkers fans events out to one goroutine per sequence key:
// events sharing a key are handled strictly in source order, different
// keys run concurrently.
type sequenceWorkers struct {
	ctx     context.Context
	group   *errgroup.Group
	handle  func(ctx context.Context, rawEvent esdb.Event) error
	mu      sync.Mutex
	queues  map[string]chan esdb.Event
}

func newSequenceWorkers(ctx context.Context, group *errgroup.Group, handle func(ctx context.Context, rawEvent esdb.Event) error) *sequenceWorkers {
	return &sequenceWorkers{
		ctx:    ctx,
		group:  group,
		handle: handle,
		queues: make(map[string]chan esdb.Event),
	}
}

// submit enqueues rawEvent on its sequence key's worker, starting the
// worker on first use. Blocks briefly if the worker's backlog is full,
// providing implicit backpressure.
func (w *sequenceWorkers) submit(key string, rawEvent esdb.Event) error {
	w.mu.Lock()
	queue, ok := w.queues[key]
	if !ok {
		queue = make(chan esdb.Event, 64)
		w.queues[key] = queue
		w.group.Go(func() error { return w.run(queue) })
	}
	w.mu.Unlock()

	select {
	case queue <- rawEvent:
		return nil
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

func (w *sequenceWorkers) run(queue chan esdb.Event) error {
	for {
		select {
		case rawEvent, ok := <-queue:
			if !ok {
				return nil
			}
			if err := w.handle(w.ctx, rawEvent); err != nil {
				return err
			}
		case <-w.ctx.Done():
			return w.ctx.Err()
		}
	}
}

// closeAll closes every worker's queue, letting in-flight events drain
// before the caller awaits group.Wait().
func (w *sequenceWorkers) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, queue := range w.queues {
		close(queue)
		delete(w.queues, key)
	}
}
