// Package registry maps delegate ids to rule-module implementations and the
// audit scopes they use. It is process state: define, rebind and clear are
// the only transitions.
package registry

import (
	"slices"
	"sync"

	"tokencore/internal/core/delegate"
	id "tokencore/pkg/domain"
)

// Binding is a registered delegate.
type Binding struct {
	ID       id.DelegateID
	Delegate delegate.Delegate
	Scopes   []id.ScopeID
}

// Registry holds the delegate bindings.
type Registry struct {
	mu       sync.RWMutex
	bindings map[id.DelegateID]Binding
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{bindings: make(map[id.DelegateID]Binding)}
}

// Define registers or rebinds a delegate id. A nil implementation clears it.
// Repeated scope ids are dropped. It returns the previous binding, if any.
func (r *Registry) Define(delegateID id.DelegateID, impl delegate.Delegate, scopes []id.ScopeID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.bindings[delegateID]
	if impl == nil {
		delete(r.bindings, delegateID)
		return prev, had
	}
	r.bindings[delegateID] = Binding{
		ID:       delegateID,
		Delegate: impl,
		Scopes:   uniqueScopes(scopes),
	}
	return prev, had
}

// uniqueScopes copies scopes keeping the first occurrence of each id. A scope
// listed twice would otherwise be evaluated and recorded twice per transfer.
func uniqueScopes(scopes []id.ScopeID) []id.ScopeID {
	out := make([]id.ScopeID, 0, len(scopes))
	for _, sc := range scopes {
		if !slices.Contains(out, sc) {
			out = append(out, sc)
		}
	}
	return out
}

// Clear removes a delegate id.
func (r *Registry) Clear(delegateID id.DelegateID) {
	r.Define(delegateID, nil, nil)
}

// Resolve returns the binding for a delegate id. Scopes are copied.
func (r *Registry) Resolve(delegateID id.DelegateID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[delegateID]
	if !ok {
		return Binding{}, false
	}
	b.Scopes = slices.Clone(b.Scopes)
	return b, true
}

// IDs returns the registered delegate ids in ascending order.
func (r *Registry) IDs() []id.DelegateID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]id.DelegateID, 0, len(r.bindings))
	for k := range r.bindings {
		ids = append(ids, k)
	}
	slices.Sort(ids)
	return ids
}
