package protocol

import (
	"fmt"
	"sync"
)

// Registry maps protocol names and ids to descriptors. Sniffing tries the
// descriptors in registration order, so earlier registrations win.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Protocol
	byID   map[uint8]Protocol
	order  []Protocol
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Protocol),
		byID:   make(map[uint8]Protocol),
	}
}

// Register adds p. A descriptor whose name or id is already present is
// rejected and the registry is left unchanged.
func (r *Registry) Register(p Protocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[p.Name()]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateProtocol, p.Name())
	}
	if existing, ok := r.byID[p.ID()]; ok {
		return fmt.Errorf("%w: id %d (used by %q)", ErrDuplicateProtocol, p.ID(), existing.Name())
	}

	r.byName[p.Name()] = p
	r.byID[p.ID()] = p
	r.order = append(r.order, p)
	return nil
}

// ByName returns the descriptor registered under name.
func (r *Registry) ByName(name string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// ByID returns the descriptor registered under id.
func (r *Registry) ByID(id uint8) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Sniff returns the first registered descriptor that recognises b.
func (r *Registry) Sniff(b []byte) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.order {
		if p.InstanceOf(b) {
			return p, true
		}
	}
	return nil, false
}

// Protocols returns the registered descriptors in registration order.
func (r *Registry) Protocols() []Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Protocol, len(r.order))
	copy(out, r.order)
	return out
}

// Builtins returns fresh instances of the built-in descriptors in their
// registration order. Network layers come first, then the transports with
// the strictest InstanceOf checks.
func Builtins() []Protocol {
	return []Protocol{
		NewIPv4(),
		NewIPv6(),
		NewTCP(),
		NewUDP(),
		NewICMPv4(),
		NewICMPv6(),
	}
}

// RegisterBuiltins registers the built-in descriptors into r.
func RegisterBuiltins(r *Registry) error {
	for _, p := range Builtins() {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// InitRegistry populates the process-wide registry with the built-ins
// followed by extra. Only the first call has an effect.
func InitRegistry(extra ...Protocol) error {
	defaultOnce.Do(func() {
		r := NewRegistry()
		if err := RegisterBuiltins(r); err != nil {
			defaultErr = err
			return
		}
		for _, p := range extra {
			if err := r.Register(p); err != nil {
				defaultErr = err
				return
			}
		}
		defaultRegistry = r
	})
	return defaultErr
}

// Default returns the process-wide registry, initialising it with the
// built-ins if InitRegistry has not been called.
func Default() *Registry {
	if err := InitRegistry(); err != nil {
		panic(fmt.Sprintf("protocol: default registry: %v", err))
	}
	return defaultRegistry
}
