package adapter

import (
	"sort"
	"sync"
)

// Factory builds a fresh adapter with the given endpoint overrides.
type Factory func(Endpoints) Adapter

var registry = struct {
	sync.RWMutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// Register adds a named adapter constructor to the process-wide
// directory. Registering the same name twice is an error.
func Register(name string, f Factory) error {
	if name == "" || f == nil {
		return MisuseError("adapter registration needs a name and a factory")
	}
	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.factories[name]; dup {
		return MisuseError("adapter %q already registered", name)
	}
	registry.factories[name] = f
	return nil
}

// MustRegister is Register for package init blocks; duplicates panic.
func MustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

// New looks up a registered exchange and constructs a fresh adapter
// with the given endpoint overrides. Unknown names are a misuse error.
func New(name string, endpoints Endpoints) (Adapter, error) {
	registry.RLock()
	f, ok := registry.factories[name]
	registry.RUnlock()
	if !ok {
		return nil, MisuseError("unknown exchange %q", name)
	}
	return f(endpoints), nil
}

// Names lists the registered exchanges in sorted order.
func Names() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
