package handling

// Registry is an explicit builder for one group's event handlers, the
// same discovery-by-registration replacement escqrs.Registry provides
// for command routing.
type Registry struct {
	handlers []EventHandlerDefinition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddEventHandler registers one event handler definition and returns the
// Registry for chaining.
func (r *Registry) AddEventHandler(def EventHandlerDefinition) *Registry {
	r.handlers = append(r.handlers, def)
	return r
}

// BuildGroup returns config with Handlers populated from every
// definition registered so far.
func (r *Registry) BuildGroup(config GroupConfig) GroupConfig {
	config.Handlers = r.handlers
	return config
}
