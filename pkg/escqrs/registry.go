package escqrs

// Registry is an explicit builder for a CommandRouter's definitions, used
// in place of the reflection/annotation-based discovery of the wiring
// component this package's router replaces: handlers register themselves
// by calling AddCommandHandler/AddStateRebuildingHandler rather than
// being discovered off annotated methods.
type Registry struct {
	commands   []CommandHandlerDefinition
	rebuilders []StateRebuildingHandlerDefinition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddCommandHandler registers one command handler definition and returns
// the Registry for chaining.
func (r *Registry) AddCommandHandler(def CommandHandlerDefinition) *Registry {
	r.commands = append(r.commands, def)
	return r
}

// AddStateRebuildingHandler registers one state-rebuilding handler
// definition and returns the Registry for chaining.
func (r *Registry) AddStateRebuildingHandler(def StateRebuildingHandlerDefinition) *Registry {
	r.rebuilders = append(r.rebuilders, def)
	return r
}

// Build constructs a CommandRouter from every definition registered so
// far.
func (r *Registry) Build(config RouterConfig) *CommandRouter {
	return NewCommandRouter(config, r.commands, r.rebuilders)
}
