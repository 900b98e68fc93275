package documents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/audit"
	"github.com/platinummonkey/cristata/pkg/crdt"
	"github.com/platinummonkey/cristata/pkg/documents/documentstest"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/schema"
)

var (
	adminTeamID = primitive.NewObjectID().Hex()
	authorID    = primitive.NewObjectID()
	editorID    = primitive.NewObjectID()
	strangerID  = primitive.NewObjectID()

	author   = &rbac.Profile{ID: authorID, Tenant: "paladin", Name: "Author"}
	editor   = &rbac.Profile{ID: editorID, Tenant: "paladin", Name: "Editor"}
	stranger = &rbac.Profile{ID: strangerID, Tenant: "paladin", Name: "Stranger"}
	admin    = &rbac.Profile{ID: primitive.NewObjectID(), Tenant: "paladin", Teams: []string{adminTeamID}}
)

type staticTeams map[string]string

func (s staticTeams) ResolveSlugs(ctx context.Context, slugs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, slug := range slugs {
		if id, ok := s[slug]; ok {
			out[slug] = id
		}
	}
	return out, nil
}

type recordingMirror struct {
	mu      sync.Mutex
	changes []crdt.Change
	result  crdt.Result
}

func (m *recordingMirror) Apply(ctx context.Context, change crdt.Change) crdt.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, change)
	return m.result
}

func (m *recordingMirror) recorded() []crdt.Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]crdt.Change(nil), m.changes...)
}

type recordingAudit struct {
	mu         sync.Mutex
	activities []*audit.Activity
	err        error
}

func (a *recordingAudit) Record(ctx context.Context, activity *audit.Activity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.activities = append(a.activities, activity)
	return nil
}

func (a *recordingAudit) Close() error { return nil }

func (a *recordingAudit) recorded() []*audit.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*audit.Activity(nil), a.activities...)
}

type harness struct {
	svc    *Service
	store  *documentstest.MemoryStore
	clock  *clock.Mock
	mirror *recordingMirror
	audit  *recordingAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  documentstest.NewMemoryStore(),
		clock:  clock.NewMock(),
		mirror: &recordingMirror{result: crdt.OK()},
		audit:  &recordingAudit{},
	}
	h.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	checker := rbac.NewPermissionChecker(staticTeams{rbac.AdminTeamSlug: adminTeamID})
	h.svc = NewService(h.store, checker,
		WithClock(h.clock),
		WithMirror(h.mirror),
		WithAuditLogger(h.audit),
	)
	return h
}

func (h *harness) create(t *testing.T, m *Model, profile *rbac.Profile, data bson.M) bson.M {
	t.Helper()
	doc, err := h.svc.CreateDoc(context.Background(), CreateParams{Model: m, Profile: profile, Data: data})
	require.NoError(t, err)
	h.clock.Add(time.Second)
	return doc
}

// articleModel is a publishable collection where authors listed on the
// document may modify it and the editor may delete and publish.
func articleModel(t *testing.T) *Model {
	t.Helper()
	def, err := schema.Parse(map[string]interface{}{
		"name": map[string]interface{}{"type": "String"},
		"body": map[string]interface{}{"type": "String"},
		"meta": map[string]interface{}{
			"color": map[string]interface{}{"type": "String"},
			"tags":  map[string]interface{}{"type": []interface{}{"String"}},
		},
		"people": map[string]interface{}{
			"authors": map[string]interface{}{"type": []interface{}{"[User]", "ObjectId"}},
		},
	})
	require.NoError(t, err)

	lifecycle := map[string]interface{}{"teams": []interface{}{}, "users": []interface{}{"people.authors", editorID.Hex()}}
	access, err := rbac.ParseActionAccess(map[string]interface{}{
		"get":     map[string]interface{}{"teams": []interface{}{0}, "users": []interface{}{}},
		"create":  map[string]interface{}{"teams": []interface{}{"0"}, "users": []interface{}{}},
		"modify":  lifecycle,
		"hide":    lifecycle,
		"archive": lifecycle,
		"lock":    lifecycle,
		"watch":   map[string]interface{}{"teams": []interface{}{0}, "users": []interface{}{}},
		"delete":  map[string]interface{}{"teams": []interface{}{}, "users": []interface{}{editorID.Hex()}},
		"publish": map[string]interface{}{"teams": []interface{}{}, "users": []interface{}{editorID.Hex()}},
	})
	require.NoError(t, err)

	return &Model{
		Name:            "Article",
		Collection:      "articles",
		Tenant:          "paladin",
		Def:             schema.Merge(schema.BaseFields(), schema.PublishableFields(), schema.PermissionFields(), def),
		Access:          access,
		CanPublish:      true,
		WithPermissions: true,
		Collaborative:   true,
	}
}

// openArticle is visible to every signed in user and lists author as an
// author.
func openArticle(name string) bson.M {
	return bson.M{
		"name":        name,
		"body":        "body of " + name,
		"meta":        bson.M{"color": "red", "tags": bson.A{"news"}},
		"people":      bson.M{"authors": bson.A{authorID}},
		"permissions": bson.M{"teams": bson.A{"0"}},
	}
}

var errBoom = errors.New("boom")
