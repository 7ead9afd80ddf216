// Package escqrs is the command-router pipeline that sits between
// application code and an esdb.Client: sourcing, state rebuilding,
// command-handler invocation, event capture, metadata propagation,
// precondition synthesis, and atomic publication, plus the supporting
// marshalling, caching, and publishing components it depends on.
package escqrs

import "escqrs/pkg/esdb"

// MetaData is the free-form map carried alongside a command or event.
type MetaData map[string]any

// SourcingMode governs whether and how history is read prior to handler
// invocation.
type SourcingMode int

const (
	SourcingNone SourcingMode = iota
	SourcingLocal
	SourcingRecursive
)

func (m SourcingMode) String() string {
	switch m {
	case SourcingNone:
		return "NONE"
	case SourcingLocal:
		return "LOCAL"
	case SourcingRecursive:
		return "RECURSIVE"
	default:
		return "UNKNOWN"
	}
}

// SubjectCondition constrains whether a command's target subject must
// already exist.
type SubjectCondition int

const (
	SubjectConditionNone SubjectCondition = iota
	SubjectConditionPristine
	SubjectConditionExists
)

// Command is anything routed by a CommandRouter. Subject is the path the
// command targets; Condition governs the subject-existence check run
// before the command handler is invoked.
type Command interface {
	Subject() string
	Condition() SubjectCondition
}

// CapturedEvent is produced inside a command handler via
// CommandEventCapturer, before anything has been written to the store.
type CapturedEvent struct {
	Subject       string
	Payload       any
	MetaData      MetaData
	Preconditions []esdb.Precondition
}

// CacheKey identifies one state-rebuilding cache slot.
type CacheKey struct {
	Subject      string
	InstanceType string
	SourcingMode SourcingMode
}

// CacheValue is the cached result of sourcing+rebuilding for a CacheKey.
// LatestEventID is "" when nothing has ever been sourced for this key.
type CacheValue struct {
	LatestEventID    string
	Instance         any
	SourcedSubjectIDs map[string]string
}

func emptyCacheValue() CacheValue {
	return CacheValue{SourcedSubjectIDs: map[string]string{}}
}
