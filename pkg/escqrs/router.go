package escqrs

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"strings"

	"go.jetify.com/typeid"

	"escqrs/pkg/esdb"
)

// RouterConfig collects a CommandRouter's dependencies. Zero value is not
// usable: Client and Resolver must be set; Cache, Upcasters and Logger
// fall back to defaults when nil.
type RouterConfig struct {
	Client      esdb.Client
	Resolver    EventTypeResolver
	Upcasters   *EventUpcasters
	Cache       StateCache
	Propagation PropagationConfig
	Source      string

	// Logger receives one line per Route call, tagged with a generated
	// correlation id. Defaults to log.Default().
	Logger *log.Logger
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.Cache == nil {
		c.Cache = NullStateCache{}
	}
	if c.Upcasters == nil {
		c.Upcasters = NewEventUpcasters()
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// newCorrelationID mints a per-Route correlation id for log lines, the
// same tag-based-id idiom the teacher uses for event ids
// (pkg/dcb/typeid_helpers.go), here tagged "cmd" instead of by event tags.
func newCorrelationID() string {
	tid, err := typeid.WithPrefix("cmd")
	if err != nil {
		return "cmd_unknown"
	}
	return tid.String()
}

// CommandRouter is the pipeline: source, rebuild state, invoke the
// command handler, capture events, synthesize preconditions, publish
// atomically.
type CommandRouter struct {
	config     RouterConfig
	reader     *EventReader
	publisher  *EventPublisher
	commands   map[reflect.Type]CommandHandlerDefinition
	rebuilders map[reflect.Type][]StateRebuildingHandlerDefinition // keyed by InstanceType
}

// NewCommandRouter builds a router from its dependencies and definitions.
func NewCommandRouter(config RouterConfig, commands []CommandHandlerDefinition, rebuilders []StateRebuildingHandlerDefinition) *CommandRouter {
	config = config.withDefaults()
	commandsByType := make(map[reflect.Type]CommandHandlerDefinition, len(commands))
	for _, c := range commands {
		commandsByType[c.CommandType] = c
	}
	rebuildersByInstance := make(map[reflect.Type][]StateRebuildingHandlerDefinition)
	for _, r := range rebuilders {
		rebuildersByInstance[r.InstanceType] = append(rebuildersByInstance[r.InstanceType], r)
	}
	return &CommandRouter{
		config:     config,
		reader:     NewEventReader(config.Resolver, config.Upcasters),
		publisher:  NewEventPublisher(config.Client, config.Source),
		commands:   commandsByType,
		rebuilders: rebuildersByInstance,
	}
}

// Route executes the full pipeline for command and returns the command
// handler's result.
func (r *CommandRouter) Route(ctx context.Context, command Command, metaData MetaData) (any, error) {
	correlationID := newCorrelationID()
	commandType := reflect.TypeOf(command)
	def, ok := r.commands[commandType]
	if !ok {
		r.config.Logger.Printf("[%s] route %s on %s: no handler registered", correlationID, commandType, command.Subject())
		return nil, newMissingHandlerDefinition(commandType.String())
	}
	r.config.Logger.Printf("[%s] route %s on %s", correlationID, commandType, command.Subject())

	var relevant []StateRebuildingHandlerDefinition
	if def.InstanceType != nil {
		relevant = r.rebuilders[def.InstanceType]
	}

	cacheKey := CacheKey{
		Subject:      command.Subject(),
		InstanceType: instanceTypeName(def.InstanceType),
		SourcingMode: def.SourcingMode,
	}

	sourced, err := r.config.Cache.FetchAndMerge(cacheKey, func(current CacheValue) (CacheValue, error) {
		return r.sourceAndRebuild(ctx, command, current, relevant, def.SourcingMode)
	})
	if err != nil {
		r.config.Logger.Printf("[%s] sourcing %s failed: %v", correlationID, command.Subject(), err)
		return nil, err
	}

	capturer := newCommandEventCapturer(sourced.Instance, command.Subject(), relevant)
	result, err := def.fn(ctx, command, sourced.Instance, metaData, capturer)
	if err != nil {
		r.config.Logger.Printf("[%s] handler for %s rejected %s: %v", correlationID, commandType, command.Subject(), err)
		return nil, err
	}

	captured := capturer.Captured()
	if len(captured) == 0 {
		return result, nil
	}

	preconditions := r.synthesizePreconditions(command.Subject(), captured, sourced.SourcedSubjectIDs)
	for i := range captured {
		captured[i].MetaData = r.config.Propagation.apply(metaData, captured[i].MetaData)
	}
	if _, err := r.publisher.Publish(ctx, r.config.Resolver, captured, preconditions); err != nil {
		r.config.Logger.Printf("[%s] publish on %s failed: %v", correlationID, command.Subject(), err)
		return nil, err
	}
	r.config.Logger.Printf("[%s] published %d event(s) on %s", correlationID, len(captured), command.Subject())
	return result, nil
}

// sourceAndRebuild is the mergeFn passed to StateCache.FetchAndMerge: it
// performs the sourcing read, enforces the subject condition, and folds
// every relevant state-rebuilding handler over the sourced events.
func (r *CommandRouter) sourceAndRebuild(ctx context.Context, command Command, current CacheValue, relevant []StateRebuildingHandlerDefinition, mode SourcingMode) (CacheValue, error) {
	instance := current.Instance
	latestID := current.LatestEventID
	sourcedSubjectIDs := make(map[string]string, len(current.SourcedSubjectIDs))
	for k, v := range current.SourcedSubjectIDs {
		sourcedSubjectIDs[k] = v
	}

	if mode != SourcingNone {
		var options []esdb.Option
		if mode == SourcingRecursive {
			options = append(options, esdb.WithRecursive())
		}
		if current.LatestEventID != "" {
			options = append(options, esdb.WithLowerBoundExclusive(current.LatestEventID))
		}

		requestor := func(consumer func(esdb.Event) error) error {
			return r.config.Client.Read(ctx, command.Subject(), options, consumer)
		}

		err := r.reader.ConsumeAsObject(requestor, func(rawEvent esdb.Event, payload any, eventMetaData MetaData) error {
			latestID = rawEvent.ID
			sourcedSubjectIDs[rawEvent.Subject] = rawEvent.ID

			eventType := reflect.TypeOf(payload)
			for _, rebuilder := range relevant {
				if eventType == nil || !eventType.AssignableTo(rebuilder.EventType) {
					continue
				}
				next := rebuilder.fn(instance, payload, eventMetaData, rawEvent.Subject, &rawEvent)
				if isNilInstance(next) {
					return newNilInstanceFromHandler(eventType.String())
				}
				instance = next
			}
			return nil
		})
		if err != nil {
			return CacheValue{}, err
		}
	}

	if err := enforceSubjectCondition(command, sourcedSubjectIDs); err != nil {
		return CacheValue{}, err
	}

	return CacheValue{LatestEventID: latestID, Instance: instance, SourcedSubjectIDs: sourcedSubjectIDs}, nil
}

func enforceSubjectCondition(command Command, sourcedSubjectIDs map[string]string) error {
	_, exists := sourcedSubjectIDs[command.Subject()]
	switch command.Condition() {
	case SubjectConditionExists:
		if !exists {
			return newSubjectDoesNotExist(command.Subject())
		}
	case SubjectConditionPristine:
		if exists {
			return newSubjectAlreadyExists(command.Subject())
		}
	}
	return nil
}

// synthesizePreconditions builds the additional preconditions implied by
// sourcing, on top of every user-supplied precondition already attached
// to captured events.
func (r *CommandRouter) synthesizePreconditions(commandSubject string, captured []CapturedEvent, sourcedSubjectIDs map[string]string) []esdb.Precondition {
	var preconditions []esdb.Precondition

	seenPristine := make(map[string]bool)
	for _, ce := range captured {
		if !strings.HasPrefix(ce.Subject, commandSubject) {
			continue
		}
		if _, sourced := sourcedSubjectIDs[ce.Subject]; sourced {
			continue
		}
		if seenPristine[ce.Subject] {
			continue
		}
		seenPristine[ce.Subject] = true
		preconditions = append(preconditions, esdb.NewSubjectIsPristine(ce.Subject))
	}

	for subject, id := range sourcedSubjectIDs {
		preconditions = append(preconditions, esdb.NewSubjectIsOnEventID(subject, id))
	}

	for _, ce := range captured {
		preconditions = append(preconditions, ce.Preconditions...)
	}

	return preconditions
}

func instanceTypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	prefix := ""
	for t.Kind() == reflect.Pointer {
		prefix += "*"
		t = t.Elem()
	}
	return prefix + fmt.Sprintf("%s.%s", t.PkgPath(), t.Name())
}
