package handling

import "testing"

func TestRegistryBuildGroupPopulatesHandlers(t *testing.T) {
	registry := NewRegistry()
	registry.AddEventHandler(NewEventHandler(func(pinged) error { return nil }))
	registry.AddEventHandler(NewEventHandler(func(pinged) error { return nil }))

	config := registry.BuildGroup(GroupConfig{Name: "g"})
	if len(config.Handlers) != 2 {
		t.Fatalf("Handlers = %d, want 2", len(config.Handlers))
	}
}

func TestRegistryAddEventHandlerChains(t *testing.T) {
	registry := NewRegistry()
	returned := registry.AddEventHandler(NewEventHandler(func(pinged) error { return nil }))
	if returned != registry {
		t.Fatal("AddEventHandler() should return the same Registry for chaining")
	}
}

func TestGroupConfigWithDefaults(t *testing.T) {
	config := GroupConfig{}.withDefaults()
	if config.FetchSubject != "/" {
		t.Fatalf("FetchSubject = %q, want /", config.FetchSubject)
	}
	if config.FetchRecursive == nil || !*config.FetchRecursive {
		t.Fatal("FetchRecursive should default to true")
	}
	if config.Partitions != 1 {
		t.Fatalf("Partitions = %d, want 1", config.Partitions)
	}
	if config.Lifecycle == nil {
		t.Fatal("Lifecycle should default to a non-nil controller")
	}
	if config.ProgressTracker == nil {
		t.Fatal("ProgressTracker should default to a non-nil tracker")
	}
	if config.SequenceResolver == nil {
		t.Fatal("SequenceResolver should default to a non-nil resolver")
	}
}

func TestGroupConfigWithDefaultsRespectsExplicitFalse(t *testing.T) {
	recursive := false
	config := GroupConfig{FetchRecursive: &recursive}.withDefaults()
	if config.FetchRecursive == nil || *config.FetchRecursive {
		t.Fatal("an explicit false FetchRecursive must not be overwritten by the default")
	}
}
