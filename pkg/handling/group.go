package handling

import (
	"escqrs/pkg/esdb"
)

// GroupConfig is the per-event-handling-group configuration surface,
// populated by a plain struct literal in the EventStoreConfig convention
// (no external config library).
type GroupConfig struct {
	Name string

	FetchSubject string // default "/"
	// FetchRecursive defaults to true; set explicitly to false to
	// disable (a bare bool zero value can't express "unset").
	FetchRecursive *bool

	Partitions int // life-cycle.partitions, default 1

	Lifecycle        LifecycleController
	ProgressTracker  ProgressTracker
	SequenceResolver EventSequenceResolver
	Retry            RetryConfig

	Client   esdb.Client
	Resolver EventResolver
	Handlers []EventHandlerDefinition
}

func (c GroupConfig) withDefaults() GroupConfig {
	if c.FetchSubject == "" {
		c.FetchSubject = "/"
	}
	if c.FetchRecursive == nil {
		recursive := true
		c.FetchRecursive = &recursive
	}
	if c.Partitions <= 0 {
		c.Partitions = 1
	}
	if c.Lifecycle == nil {
		c.Lifecycle = PlainLifecycleController{}
	}
	if c.ProgressTracker == nil {
		c.ProgressTracker = NewInMemoryProgressTracker()
	}
	if c.SequenceResolver == nil {
		c.SequenceResolver = NoEventSequenceResolver{}
	}
	return c
}
