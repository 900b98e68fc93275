package tenants

import (
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/collection"
)

// Compiled is an immutable snapshot of a tenant and its built schema.
// Requests hold on to the snapshot they started with, so a rebuild never
// changes the schema under an in-flight request.
type Compiled struct {
	Tenant Tenant
	Hash   string
	Schema *collection.Schema
}

// Registry maps tenant names onto their current snapshot
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Compiled
	ids     map[primitive.ObjectID]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Compiled),
		ids:     make(map[primitive.ObjectID]string),
	}
}

// Get returns the current snapshot of a tenant
func (r *Registry) Get(name string) (*Compiled, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.entries[name]
	return c, ok
}

// NeedsBuild reports whether t differs from the registered snapshot
func (r *Registry) NeedsBuild(t Tenant) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.entries[t.Name]
	return !ok || c.Hash != t.Hash()
}

// Store swaps in a new snapshot
func (r *Registry) Store(c *Compiled) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[c.Tenant.Name] = c
	if !c.Tenant.ID.IsZero() {
		r.ids[c.Tenant.ID] = c.Tenant.Name
	}
}

// UpdateTenant replaces the tenant record of a snapshot without rebuilding
// its schema. It is used for changes that do not affect the hash.
func (r *Registry) UpdateTenant(t Tenant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.entries[t.Name]
	if !ok {
		return false
	}
	next := *c
	next.Tenant = t
	r.entries[t.Name] = &next
	return true
}

// Remove drops a tenant by name, or by id when the name is empty.
// It returns the removed name.
func (r *Registry) Remove(t Tenant) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name
	if name == "" {
		name = r.ids[t.ID]
	}
	c, ok := r.entries[name]
	if !ok {
		return "", false
	}
	delete(r.entries, name)
	delete(r.ids, c.Tenant.ID)
	return name, true
}

// Names lists the registered tenants, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tenants
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
