package tools

import (
	"fmt"
	"sort"
	"sync"

	"valet/internal/logging"
	"valet/internal/types"
)

// Registry holds all known capabilities and provides lookup functionality.
// It is thread-safe and populated from the static catalog at process start.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]*Capability

	// byDomain provides fast lookup by domain.
	byDomain map[Domain][]*Capability
}

// NewRegistry creates a new empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]*Capability),
		byDomain:     make(map[Domain][]*Capability),
	}
}

// Register adds a capability to the registry.
// Returns an error if a capability with the same name already exists.
func (r *Registry) Register(cap *Capability) error {
	if err := cap.Validate(); err != nil {
		return fmt.Errorf("invalid capability: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[cap.Name]; exists {
		return fmt.Errorf("%w: %s", ErrCapabilityAlreadyRegistered, cap.Name)
	}

	r.capabilities[cap.Name] = cap
	r.byDomain[cap.Domain] = append(r.byDomain[cap.Domain], cap)

	logging.ToolsDebug("Registered capability: %s (domain=%s, side_effect=%s)", cap.Name, cap.Domain, cap.SideEffect)
	return nil
}

// MustRegister registers a capability and panics on error.
// Use this for static catalog registration at init time.
func (r *Registry) MustRegister(cap *Capability) {
	if err := r.Register(cap); err != nil {
		panic(fmt.Sprintf("failed to register capability %s: %v", cap.Name, err))
	}
}

// Get returns a capability by name, or nil if not found.
func (r *Registry) Get(name string) *Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capabilities[name]
}

// Has returns true if a capability with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.capabilities[name]
	return ok
}

// GetByDomain returns all capabilities in a domain, sorted by name.
func (r *Registry) GetByDomain(domain Domain) []*Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]*Capability, len(r.byDomain[domain]))
	copy(caps, r.byDomain[domain])

	sort.Slice(caps, func(i, j int) bool {
		return caps[i].Name < caps[j].Name
	})

	return caps
}

// Names returns all registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.capabilities)
}

// ValidateParams checks that all required parameters are present and no
// undeclared parameter is passed. Pagination parameters are always allowed
// on paged capabilities.
func (r *Registry) ValidateParams(name string, params Params) error {
	cap := r.Get(name)
	if cap == nil {
		return fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
	}

	for _, required := range cap.Required {
		if v, ok := params[required]; !ok || v == "" {
			return fmt.Errorf("%w: %s.%s", ErrMissingRequiredParam, name, required)
		}
	}

	for field := range params {
		if cap.Paged && (field == ParamOffset || field == ParamLimit) {
			continue
		}
		if !cap.Declares(field) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownParam, name, field)
		}
	}

	return nil
}

// RequiresConfirmation reports whether dispatching the named capability must
// go through the confirmation gate first.
func (r *Registry) RequiresConfirmation(name string) (bool, error) {
	cap := r.Get(name)
	if cap == nil {
		return false, fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
	}
	return cap.SideEffect == Mutating, nil
}

// RequiredFields returns the required field set for the named capability.
func (r *Registry) RequiredFields(name string) ([]types.FieldName, error) {
	cap := r.Get(name)
	if cap == nil {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
	}
	out := make([]types.FieldName, len(cap.Required))
	copy(out, cap.Required)
	return out, nil
}
