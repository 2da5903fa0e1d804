package dns

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
)

// Factory is a constructor function that providers register to create themselves.
type Factory func(log logr.Logger, settings map[string]string) (Provider, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by provider packages in their init() to self-register.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("dns: provider %q already registered", kind))
	}
	factories[kind] = f
}

// Registered returns the sorted names of all registered provider kinds.
func Registered() []string {
	mu.Lock()
	defer mu.Unlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// IsRegistered reports whether a provider kind can be constructed.
func IsRegistered(kind string) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := factories[kind]
	return ok
}

// NewProvider looks up the named provider kind in the registry and creates it.
func NewProvider(kind string, log logr.Logger, settings map[string]string) (Provider, error) {
	mu.Lock()
	f, ok := factories[kind]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported DNS provider: %q (registered: %v)", kind, Registered())
	}
	return f(log, settings)
}
