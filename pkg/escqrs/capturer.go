package escqrs

import (
	"fmt"
	"reflect"
	"strings"

	"escqrs/pkg/esdb"
)

// CommandEventCapturer is the publisher a command handler is given. It
// never writes through to the store: every call appends a
// CapturedEvent and synchronously folds it through the relevant
// state-rebuilding handlers, keeping Instance current for the rest of
// the handler's execution. Capture order is preserved for the eventual
// atomic write.
type CommandEventCapturer struct {
	Instance       any
	commandSubject string
	rebuilders     []StateRebuildingHandlerDefinition
	captured       []CapturedEvent
}

func newCommandEventCapturer(instance any, commandSubject string, rebuilders []StateRebuildingHandlerDefinition) *CommandEventCapturer {
	return &CommandEventCapturer{Instance: instance, commandSubject: commandSubject, rebuilders: rebuilders}
}

// Publish captures event against the command's own subject.
func (c *CommandEventCapturer) Publish(event any, metaData MetaData, preconditions ...esdb.Precondition) error {
	return c.publishTo(c.commandSubject, event, metaData, preconditions)
}

// PublishRelative captures event against commandSubject+"/"+suffix.
// suffix must not start with "/".
func (c *CommandEventCapturer) PublishRelative(suffix string, event any, metaData MetaData, preconditions ...esdb.Precondition) error {
	if strings.HasPrefix(suffix, "/") {
		return &FrameworkError{
			RouterError: RouterError{Op: "publishRelative", Err: fmt.Errorf("suffix %q must not start with \"/\"", suffix)},
			Transient:   false,
		}
	}
	return c.publishTo(c.commandSubject+"/"+suffix, event, metaData, preconditions)
}

func (c *CommandEventCapturer) publishTo(subject string, event any, metaData MetaData, preconditions []esdb.Precondition) error {
	c.captured = append(c.captured, CapturedEvent{
		Subject:       subject,
		Payload:       event,
		MetaData:      metaData,
		Preconditions: preconditions,
	})
	return c.fold(event, metaData, subject)
}

// fold applies every relevant state-rebuilding handler whose EventType is
// assignable from event's concrete type, in registration order, using a
// nil rawEvent (nothing has been written yet).
func (c *CommandEventCapturer) fold(event any, metaData MetaData, subject string) error {
	eventType := reflect.TypeOf(event)
	for _, rebuilder := range c.rebuilders {
		if eventType == nil || !eventType.AssignableTo(rebuilder.EventType) {
			continue
		}
		next := rebuilder.fn(c.Instance, event, metaData, subject, nil)
		if isNilInstance(next) {
			return newNilInstanceFromHandler(eventType.String())
		}
		c.Instance = next
	}
	return nil
}

// Captured returns the events accumulated so far, in capture order.
func (c *CommandEventCapturer) Captured() []CapturedEvent {
	return c.captured
}
