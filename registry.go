package bridgelua

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Class describes a script state configuration. One runtime is
// created per class, on first use.
type Class struct {
	// Name identifies the class in the registry.
	Name string
	// Entry is the module required on startup, "main" when empty.
	Entry string
	// Options apply to the runtime when it is created.
	Options []Option
}

// Registry lazily creates one runtime per configured class and
// hands the same instance to every bridge referencing the class.
type Registry struct {
	sync.Mutex
	logger  *zap.Logger
	classes map[string]Class
	states  map[string]*Runtime
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:  logger,
		classes: make(map[string]Class),
		states:  make(map[string]*Runtime),
	}
}

// Define registers a class configuration. Redefining a class whose
// state already exists is an error: the running interpreter would
// not pick up the new configuration.
func (g *Registry) Define(class Class) error {
	if class.Name == "" {
		return fmt.Errorf("class name must not be empty")
	}
	g.Lock()
	defer g.Unlock()
	if _, ok := g.states[class.Name]; ok {
		return fmt.Errorf("class %q already instantiated", class.Name)
	}
	if class.Entry == "" {
		class.Entry = "main"
	}
	g.classes[class.Name] = class
	return nil
}

// State returns the runtime for a class, creating and starting it
// on first use. Returns nil (logged) for undefined classes.
func (g *Registry) State(name string) *Runtime {
	g.Lock()
	defer g.Unlock()
	if r, ok := g.states[name]; ok {
		return r
	}
	class, ok := g.classes[name]
	if !ok {
		g.logger.Error("undefined lua state class",
			zap.String("class", name),
		)
		return nil
	}
	options := append([]Option{
		WithLogger(g.logger.With(zap.String("class", name))),
		WithScriptEntry(class.Entry),
	}, class.Options...)
	r := NewRuntime(NewScriptModule(g.logger), options...)
	r.Startup()
	g.states[name] = r
	return r
}

// Shutdown stops every created state and waits for the pumps to
// drain.
func (g *Registry) Shutdown() {
	g.Lock()
	states := make([]*Runtime, 0, len(g.states))
	for _, r := range g.states {
		states = append(states, r)
	}
	g.Unlock()
	for _, r := range states {
		r.Shutdown()
	}
	for _, r := range states {
		r.Wait()
	}
}
