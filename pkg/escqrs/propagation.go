package escqrs

// PropagationMode governs how command metadata is merged into a captured
// event's metadata before publication.
type PropagationMode int

const (
	// PropagationNone leaves the captured event metadata unchanged.
	PropagationNone PropagationMode = iota
	// PropagationKeepIfPresent adds a command-metadata key only if the
	// captured event doesn't already carry it.
	PropagationKeepIfPresent
	// PropagationOverwrite unconditionally adds/replaces.
	PropagationOverwrite
)

// PropagationConfig names which command-metadata keys are ever eligible
// for propagation, and how.
type PropagationConfig struct {
	Mode PropagationMode
	Keys map[string]struct{}
}

// NewPropagationConfig builds a config restricted to the given keys.
func NewPropagationConfig(mode PropagationMode, keys ...string) PropagationConfig {
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}
	return PropagationConfig{Mode: mode, Keys: keySet}
}

// apply merges commandMeta into eventMeta per the configured mode,
// considering only the configured key subset. eventMeta may be nil.
func (c PropagationConfig) apply(commandMeta, eventMeta MetaData) MetaData {
	if c.Mode == PropagationNone || len(c.Keys) == 0 || len(commandMeta) == 0 {
		return eventMeta
	}
	merged := eventMeta
	for key := range c.Keys {
		value, ok := commandMeta[key]
		if !ok {
			continue
		}
		if merged == nil {
			merged = MetaData{}
		}
		if c.Mode == PropagationOverwrite {
			merged[key] = value
			continue
		}
		if _, present := merged[key]; !present {
			merged[key] = value
		}
	}
	return merged
}
