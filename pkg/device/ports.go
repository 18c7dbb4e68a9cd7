package device

import (
	"context"
	"errors"
	"fmt"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Port errors.
var (
	ErrPortClosed   = errors.New("port closed")
	ErrPortExists   = errors.New("port already registered")
	ErrPortNotFound = errors.New("port not found")
	ErrBufferFull   = errors.New("port buffer full")
)

// InputPort delivers messages from a controller.
type InputPort interface {
	Name() string
	// Read blocks until a message arrives, the port closes or ctx is done.
	Read(ctx context.Context) (Message, error)
}

// OutputPort sends messages to a controller.
type OutputPort interface {
	Name() string
	Write(msg Message) error
}

// Registry tracks the ports known to the process.
type Registry struct {
	inputs  cmap.ConcurrentMap[string, InputPort]
	outputs cmap.ConcurrentMap[string, OutputPort]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inputs:  cmap.New[InputPort](),
		outputs: cmap.New[OutputPort](),
	}
}

// AddInput registers an input port under its name.
func (r *Registry) AddInput(p InputPort) error {
	if !r.inputs.SetIfAbsent(p.Name(), p) {
		return fmt.Errorf("%w: %s", ErrPortExists, p.Name())
	}
	return nil
}

// AddOutput registers an output port under its name.
func (r *Registry) AddOutput(p OutputPort) error {
	if !r.outputs.SetIfAbsent(p.Name(), p) {
		return fmt.Errorf("%w: %s", ErrPortExists, p.Name())
	}
	return nil
}

// RemoveInput unregisters an input port.
func (r *Registry) RemoveInput(name string) {
	r.inputs.Remove(name)
}

// RemoveOutput unregisters an output port.
func (r *Registry) RemoveOutput(name string) {
	r.outputs.Remove(name)
}

// Output returns the named output port.
func (r *Registry) Output(name string) (OutputPort, error) {
	p, ok := r.outputs.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPortNotFound, name)
	}
	return p, nil
}

// Inputs returns the registered input ports sorted by name.
func (r *Registry) Inputs() []InputPort {
	items := r.inputs.Items()
	out := make([]InputPort, 0, len(items))
	for _, p := range items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Outputs returns the registered output ports sorted by name.
func (r *Registry) Outputs() []OutputPort {
	items := r.outputs.Items()
	out := make([]OutputPort, 0, len(items))
	for _, p := range items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// InputNames returns the names of the input ports, sorted.
func (r *Registry) InputNames() []string {
	names := r.inputs.Keys()
	sort.Strings(names)
	return names
}

// OutputNames returns the names of the output ports, sorted.
func (r *Registry) OutputNames() []string {
	names := r.outputs.Keys()
	sort.Strings(names)
	return names
}
