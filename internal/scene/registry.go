package scene

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/msageha/renderloop/internal/config"
)

// Factory builds the randomizer and visibility oracle for one scenario from
// its configuration subtree. The rng is owned by the caller so runs stay
// reproducible under a fixed seed.
type Factory func(cfg *config.Tree, rng *rand.Rand) (Randomizer, VisibilityOracle, error)

// Registry maps scenario names to factories. Scenarios are registered
// explicitly at startup; there is no package-level default registry.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under name. Registering the same name twice is
// a programming error and panics.
func (r *Registry) Register(name string, f Factory) {
	if _, ok := r.factories[name]; ok {
		panic(fmt.Sprintf("scene: scenario %q registered twice", name))
	}
	r.factories[name] = f
}

// Build instantiates the named scenario.
func (r *Registry) Build(name string, cfg *config.Tree, rng *rand.Rand) (Randomizer, VisibilityOracle, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, nil, fmt.Errorf("scene: unknown scenario %q (known: %v)", name, r.Names())
	}
	return f(cfg, rng)
}

// Names returns the registered scenario names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins installs the scenarios that ship with the binary.
func RegisterBuiltins(r *Registry) {
	r.Register("static", newStatic)
	r.Register("dropzone", newDropzone)
}
