package processor

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNilProcessor      = errors.New("nil processor")
	ErrEmptyName         = errors.New("empty processor name")
	ErrAlreadyRegistered = errors.New("processor already registered")
	ErrProcessorNotFound = errors.New("processor not found")
)

// ChainEntry is one resolved slot of a module's processor chain. Processor is
// nil for dangling names left behind by RemoveProcessor; the orchestrator
// skips those.
type ChainEntry struct {
	Name      string
	Processor PaymentProcessor
	Enabled   bool
}

// Registry catalogs processing stages and, per module, an ordered chain of
// stage names plus enable/disable flags. It is administrator-mutated state;
// the pipeline only reads it, and always as a single snapshot per payment.
type Registry struct {
	mu           sync.RWMutex
	processors   map[string]PaymentProcessor
	defaultOrder []string
	moduleChains map[ModuleID][]string
	disabled     map[ModuleID]map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		processors:   make(map[string]PaymentProcessor),
		moduleChains: make(map[ModuleID][]string),
		disabled:     make(map[ModuleID]map[string]bool),
	}
}

// RegisterProcessor adds a stage to the global catalog. The position is
// advisory: it orders the default chain used by modules without an explicit
// chain of their own.
func (r *Registry) RegisterProcessor(p PaymentProcessor, position int) error {
	if p == nil {
		return ErrNilProcessor
	}
	name := p.Name()
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[name]; exists {
		return fmt.Errorf("%q: %w", name, ErrAlreadyRegistered)
	}
	r.processors[name] = p

	if position < 0 || position > len(r.defaultOrder) {
		position = len(r.defaultOrder)
	}
	r.defaultOrder = append(r.defaultOrder, "")
	copy(r.defaultOrder[position+1:], r.defaultOrder[position:])
	r.defaultOrder[position] = name
	return nil
}

// RemoveProcessor drops a stage from the catalog. Module chains referencing
// the name are left untouched; the dangling slot resolves to nil and is
// skipped at execution time.
func (r *Registry) RemoveProcessor(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[name]; !exists {
		return fmt.Errorf("%q: %w", name, ErrProcessorNotFound)
	}
	delete(r.processors, name)
	for i, n := range r.defaultOrder {
		if n == name {
			r.defaultOrder = append(r.defaultOrder[:i], r.defaultOrder[i+1:]...)
			break
		}
	}
	return nil
}

// GetProcessor looks a stage up by name.
func (r *Registry) GetProcessor(name string) (PaymentProcessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[name]
	return p, ok
}

// UpdateProcessorOrder replaces a module's chain wholesale. Replacing the
// full ordered list atomically avoids partial-reorder race windows. Every
// name must be registered at the time of the call.
func (r *Registry) UpdateProcessorOrder(moduleID ModuleID, orderedNames []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range orderedNames {
		if _, exists := r.processors[name]; !exists {
			return fmt.Errorf("%q: %w", name, ErrProcessorNotFound)
		}
	}
	chain := make([]string, len(orderedNames))
	copy(chain, orderedNames)
	r.moduleChains[moduleID] = chain
	return nil
}

// SetProcessorEnabled flips a stage on or off for one module. Disabling does
// not remove the chain entry; the slot is skipped at execution time.
func (r *Registry) SetProcessorEnabled(moduleID ModuleID, name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[name]; !exists {
		return fmt.Errorf("%q: %w", name, ErrProcessorNotFound)
	}
	if enabled {
		delete(r.disabled[moduleID], name)
		return nil
	}
	if r.disabled[moduleID] == nil {
		r.disabled[moduleID] = make(map[string]bool)
	}
	r.disabled[moduleID][name] = true
	return nil
}

func (r *Registry) IsProcessorEnabled(moduleID ModuleID, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled[moduleID][name]
}

// GetProcessorChain resolves a module's ordered chain under a single lock so
// an in-flight payment observes one consistent snapshot even while an
// administrator reorders or disables stages. Modules without an explicit
// chain fall back to the default registration order.
func (r *Registry) GetProcessorChain(moduleID ModuleID) []ChainEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names, ok := r.moduleChains[moduleID]
	if !ok {
		names = r.defaultOrder
	}
	chain := make([]ChainEntry, len(names))
	for i, name := range names {
		chain[i] = ChainEntry{
			Name:      name,
			Processor: r.processors[name],
			Enabled:   !r.disabled[moduleID][name],
		}
	}
	return chain
}
