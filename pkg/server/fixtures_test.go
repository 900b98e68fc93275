package server

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/audit"
	"github.com/platinummonkey/cristata/pkg/collection"
	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/documents/documentstest"
	"github.com/platinummonkey/cristata/pkg/middleware"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/tenants"
)

func anyone() map[string]interface{} {
	return map[string]interface{}{"teams": []interface{}{0}, "users": []interface{}{}}
}

func articleCollection(fields map[string]interface{}) map[string]interface{} {
	access := map[string]interface{}{}
	for _, a := range []string{"get", "create", "modify", "hide", "lock", "archive", "watch", "delete", "publish"} {
		access[a] = anyone()
	}
	def := map[string]interface{}{
		"name": map[string]interface{}{"type": "String", "required": true, "public": true},
		"body": map[string]interface{}{"type": "String"},
	}
	for k, v := range fields {
		def[k] = v
	}
	return map[string]interface{}{
		"name":         "Article",
		"schemaDef":    def,
		"actionAccess": access,
	}
}

func tenant(name string) tenants.Tenant {
	return tenants.Tenant{
		Name:        name,
		Collections: []map[string]interface{}{articleCollection(nil)},
	}
}

// brokenTenant references a collection that does not exist
func brokenTenant(name string) tenants.Tenant {
	return tenants.Tenant{
		Name: name,
		Collections: []map[string]interface{}{articleCollection(map[string]interface{}{
			"ghost": map[string]interface{}{"type": []interface{}{"Ghost", "ObjectId"}},
		})},
	}
}

type noTeams struct{}

func (noTeams) ResolveSlugs(ctx context.Context, slugs []string) (map[string]string, error) {
	return map[string]string{}, nil
}

type memoryBackend struct {
	mu     sync.Mutex
	stores map[string]*documentstest.MemoryStore
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{stores: map[string]*documentstest.MemoryStore{}}
}

func (b *memoryBackend) Store(tenant string) documents.Store {
	return b.store(tenant)
}

func (b *memoryBackend) store(tenant string) *documentstest.MemoryStore {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stores[tenant]
	if !ok {
		s = documentstest.NewMemoryStore()
		b.stores[tenant] = s
	}
	return s
}

func (b *memoryBackend) Teams(string) rbac.TeamResolver { return noTeams{} }

func (b *memoryBackend) Activity(context.Context, string) (audit.Logger, error) {
	return audit.NoOpLogger{}, nil
}

type countingProvisioner struct {
	mu    sync.Mutex
	calls map[string]int
}

func (p *countingProvisioner) Provision(ctx context.Context, tenant string, cols []*collection.Collection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[tenant]++
	return nil
}

func (p *countingProvisioner) count(tenant string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[tenant]
}

type fakeSource struct {
	mu      sync.Mutex
	tenants []tenants.Tenant
	listErr error
	events  chan tenants.Event
}

func newFakeSource(list ...tenants.Tenant) *fakeSource {
	return &fakeSource{tenants: list, events: make(chan tenants.Event)}
}

func (s *fakeSource) set(list ...tenants.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = list
}

func (s *fakeSource) List(context.Context) ([]tenants.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]tenants.Tenant(nil), s.tenants...), nil
}

func (s *fakeSource) Watch(ctx context.Context, onEvent func(tenants.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-s.events:
			onEvent(e)
		}
	}
}

var editorID = primitive.NewObjectID()

type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, rawToken string) (*middleware.Claims, error) {
	if rawToken != "good" {
		return nil, errors.New("bad token")
	}
	return &middleware.Claims{Subject: editorID.Hex()}, nil
}

type fakeProfiles struct{}

func (fakeProfiles) ResolveProfile(ctx context.Context, tenant string, claims *middleware.Claims) (*rbac.Profile, error) {
	return &rbac.Profile{ID: editorID, Tenant: tenant, Name: "Editor"}, nil
}
