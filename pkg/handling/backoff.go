package handling

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the per-group backoff kind selected by the
// `retry.policy` configuration key.
type RetryPolicy int

const (
	RetryNone RetryPolicy = iota
	RetryFixed
	RetryExponential
)

// RetryConfig selects a policy and its initial interval.
type RetryConfig struct {
	Policy          RetryPolicy
	InitialInterval time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	return c
}

// newBackOff builds a cenkalti/backoff BackOff for one retry loop: a
// fresh instance per failing event, always retrying that same event.
func (c RetryConfig) newBackOff() backoff.BackOff {
	c = c.withDefaults()
	switch c.Policy {
	case RetryFixed:
		return backoff.NewConstantBackOff(c.InitialInterval)
	case RetryExponential:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.InitialInterval
		b.Reset()
		return b
	default:
		return &backoff.StopBackOff{}
	}
}
