package flow

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a Flow for one organization/workflow pairing. Each
// customer-specific workflow package registers a Factory in its own init()
// function, the same pattern llm.Register/transport.Register use for
// provider packages — this module has no business defining what any given
// client's flow graph looks like, only how one is plugged in and driven.
type Factory func() (Flow, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Factory)
)

// Register adds a workflow factory under name, overwriting any existing
// registration for the same name. Grounded on the original's FlowLoader,
// which resolves a client_name to a flow class by dynamic import;
// Register/New is the compile-time Go equivalent of that lookup.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a Flow using the factory registered under name (spec.md
// §6's client_name / workflow field). Returns an error if name is unknown,
// matching the original's "Workflow '...' not found" rejection.
func New(name string) (Flow, error) {
	registryMu.Lock()
	factory, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("flow: unknown workflow %q", name)
	}
	return factory()
}

// List returns the names of all registered workflows in sorted order.
func List() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
