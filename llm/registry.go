package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Adam-Behun/optimalbot-portal-sub000/config"
)

// Factory constructs a ChatModel from provider configuration. Provider
// packages register a Factory in their init() function.
type Factory func(cfg config.ProviderConfig) (ChatModel, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Factory)
)

// Register adds a provider factory under name, overwriting any existing
// registration for the same name.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a ChatModel using the factory registered under name.
func New(name string, cfg config.ProviderConfig) (ChatModel, error) {
	registryMu.Lock()
	factory, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
	return factory(cfg)
}

// List returns the names of all registered providers in sorted order.
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
