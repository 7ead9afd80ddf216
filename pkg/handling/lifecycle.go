package handling

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LifecycleController starts and stops a processor's main loop. Plain
// wiring runs the loop directly; leader-election gates it
// behind holding a distributed lock so only one instance across a fleet
// is ever active for a given (group, partition).
type LifecycleController interface {
	// Run blocks until ctx is cancelled or run returns, calling run
	// whenever this instance holds the right to execute (immediately,
	// for the plain controller).
	Run(ctx context.Context, run func(ctx context.Context) error) error
}

// PlainLifecycleController runs the processor loop directly; it never
// contests leadership.
type PlainLifecycleController struct{}

func (PlainLifecycleController) Run(ctx context.Context, run func(ctx context.Context) error) error {
	return run(ctx)
}

// RedisLeaderElector elects one process per lock key across a fleet. It
// re-acquires the lock on a fixed interval and cancels the supervised
// run's context promptly on losing it.
type RedisLeaderElector struct {
	Client     *redis.Client
	LockKey    string
	OwnerID    string
	LeaseTTL   time.Duration
	RetryEvery time.Duration
}

// NewRedisLeaderElector builds an elector with LeaseTTL 15s and
// RetryEvery 3s. Run does not default zero values on an elector built as
// a struct literal.
func NewRedisLeaderElector(client *redis.Client, lockKey, ownerID string) *RedisLeaderElector {
	return &RedisLeaderElector{
		Client:     client,
		LockKey:    lockKey,
		OwnerID:    ownerID,
		LeaseTTL:   15 * time.Second,
		RetryEvery: 3 * time.Second,
	}
}

// releaseScript deletes the key only if it's still held by OwnerID,
// avoiding a stale release after expiry and re-acquisition by another
// holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Run blocks, acquiring and renewing the lock, and invokes run under a
// derived context each time leadership is gained; loss of leadership
// cancels that context promptly.
func (e *RedisLeaderElector) Run(ctx context.Context, run func(ctx context.Context) error) error {
	ticker := time.NewTicker(e.RetryEvery)
	defer ticker.Stop()

	var runCancel context.CancelFunc
	var runErr chan error

	stopRun := func() {
		if runCancel != nil {
			runCancel()
			<-runErr
			runCancel = nil
		}
	}
	defer stopRun()

	for {
		held, err := e.Client.SetNX(ctx, e.LockKey, e.OwnerID, e.LeaseTTL).Result()
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("redis leader election: %w", err)
		}
		if !held {
			// Maybe we already hold it: refresh the TTL if so.
			current, _ := e.Client.Get(ctx, e.LockKey).Result()
			held = current == e.OwnerID
			if held {
				e.Client.Expire(ctx, e.LockKey, e.LeaseTTL)
			}
		}

		switch {
		case held && runCancel == nil:
			runCtx, cancel := context.WithCancel(ctx)
			runCancel = cancel
			runErr = make(chan error, 1)
			go func() { runErr <- run(runCtx) }()
		case !held && runCancel != nil:
			stopRun()
		}

		select {
		case <-ctx.Done():
			if runCancel != nil {
				<-runErr
			}
			return ctx.Err()
		case err := <-runErr:
			runCancel()
			runCancel = nil
			return err
		case <-ticker.C:
		}
	}
}

// Release drops the lock if still held by this elector's OwnerID.
func (e *RedisLeaderElector) Release(ctx context.Context) error {
	return e.Client.Eval(ctx, releaseScript, []string{e.LockKey}, e.OwnerID).Err()
}
