package documents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/audit"
	"github.com/platinummonkey/cristata/pkg/crdt"
	"github.com/platinummonkey/cristata/pkg/schema"
)

func idOf(t *testing.T, doc bson.M) primitive.ObjectID {
	t.Helper()
	id, ok := doc["_id"].(primitive.ObjectID)
	require.True(t, ok)
	return id
}

func historyTypes(doc bson.M) []string {
	items, _ := schema.AsSlice(doc["history"])
	var out []string
	for _, item := range items {
		m, _ := schema.AsMap(item)
		out = append(out, m["type"].(string))
	}
	return out
}

func ids(v interface{}) []primitive.ObjectID {
	items, _ := schema.AsSlice(v)
	var out []primitive.ObjectID
	for _, item := range items {
		if id, ok := item.(primitive.ObjectID); ok {
			out = append(out, id)
		}
	}
	return out
}

func TestCreateDoc(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	m.MandatoryWatchers = []string{"people.authors"}
	now := h.clock.Now().UTC()

	coauthor := primitive.NewObjectID()
	data := bson.M{"name": "First", "people": bson.M{"authors": bson.A{coauthor}}}
	doc, err := h.svc.CreateDoc(context.Background(), CreateParams{Model: m, Profile: author, Data: data})
	require.NoError(t, err)

	id := idOf(t, doc)
	assert.Equal(t, "First", doc["name"])
	assert.Equal(t, schema.StageDraft, doc["stage"])
	assert.Equal(t, false, doc["hidden"])
	assert.Equal(t, now, schema.Get(doc, "timestamps.created_at"))
	assert.Equal(t, authorID, schema.Get(doc, "people.created_by"))
	assert.Equal(t, []primitive.ObjectID{authorID}, ids(schema.Get(doc, "people.modified_by")))
	assert.ElementsMatch(t, []primitive.ObjectID{authorID, coauthor}, ids(schema.Get(doc, "people.watching")))
	assert.Equal(t, []primitive.ObjectID{authorID}, ids(schema.Get(doc, "permissions.users")), "creator owns the document")
	assert.Equal(t, []string{"created"}, historyTypes(doc))

	activities := h.audit.recorded()
	require.Len(t, activities, 1)
	assert.Equal(t, audit.EventTypeCreated, activities[0].Type)
	assert.Equal(t, "Article", activities[0].ColName)
	assert.Equal(t, id, activities[0].DocID)
	assert.Equal(t, "First", activities[0].Name)

	changes := h.mirror.recorded()
	require.Len(t, changes, 1)
	assert.Equal(t, "paladin.Article."+id.Hex(), changes[0].Document)
	assert.NotEmpty(t, changes[0].Fields)
}

func TestCreateDoc_Errors(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)

	_, err := h.svc.CreateDoc(context.Background(), CreateParams{Model: m, Data: bson.M{"name": "x"}})
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)

	_, err = h.svc.CreateDoc(context.Background(), CreateParams{Model: m, Profile: author, Data: bson.M{"stage": schema.StagePublished}})
	assert.ErrorIs(t, err, apierr.ErrValidation)

	delete(m.Access, "create")
	_, err = h.svc.CreateDoc(context.Background(), CreateParams{Model: m, Profile: author, Data: bson.M{"name": "x"}})
	assert.ErrorIs(t, err, apierr.ErrForbidden)
	assert.Empty(t, h.store.All(m.Collection))
}

func TestCreateDoc_IgnoresImmutableInput(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)

	forged := primitive.NewObjectID()
	doc := h.create(t, m, author, bson.M{
		"_id":      forged,
		"history":  bson.A{bson.M{"type": "published"}},
		"__yState": "forged",
		"people":   bson.M{"created_by": strangerID},
	})

	assert.NotEqual(t, forged, idOf(t, doc))
	assert.Equal(t, []string{"created"}, historyTypes(doc))
	assert.Equal(t, authorID, schema.Get(doc, "people.created_by"))
	stored := h.store.All(m.Collection)
	require.Len(t, stored, 1)
	assert.NotContains(t, stored[0], "__yState")
}

func TestModifyDoc_DeepMerges(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	created := h.create(t, m, author, openArticle("Draft"))
	id := idOf(t, created)

	doc, err := h.svc.ModifyDoc(context.Background(), ModifyParams{
		Model:   m,
		Profile: editor,
		ID:      id,
		Data:    bson.M{"meta": bson.M{"color": "blue"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "blue", schema.Get(doc, "meta.color"))
	tags, _ := schema.AsSlice(schema.Get(doc, "meta.tags"))
	assert.Equal(t, []interface{}{"news"}, tags, "sibling fields survive the patch")
	assert.Equal(t, "Draft", doc["name"])
	assert.Equal(t, editorID, schema.Get(doc, "people.last_modified_by"))
	assert.ElementsMatch(t, []primitive.ObjectID{authorID, editorID}, ids(schema.Get(doc, "people.modified_by")))
	assert.Equal(t, []string{"created", "patched"}, historyTypes(doc))

	activities := h.audit.recorded()
	require.Len(t, activities, 2)
	patched := activities[1]
	assert.Equal(t, audit.EventTypePatched, patched.Type)
	assert.Equal(t, "blue", schema.Get(patched.Updated, "meta.color"))
	assert.Nil(t, schema.Get(patched.Updated, "people"), "bookkeeping fields are not diffed")
}

func TestModifyDoc_ArraysReplace(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	id := idOf(t, h.create(t, m, author, openArticle("Draft")))

	doc, err := h.svc.ModifyDoc(context.Background(), ModifyParams{
		Model: m, Profile: author, ID: id,
		Data: bson.M{"meta": bson.M{"tags": bson.A{"sports", "local"}}},
	})
	require.NoError(t, err)
	tags, _ := schema.AsSlice(schema.Get(doc, "meta.tags"))
	assert.Equal(t, []interface{}{"sports", "local"}, tags)
}

func TestModifyDoc_RejectsPublishedStage(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	id := idOf(t, h.create(t, m, author, openArticle("Draft")))

	_, err := h.svc.ModifyDoc(context.Background(), ModifyParams{
		Model: m, Profile: editor, ID: id,
		Data: bson.M{"stage": schema.StagePublished},
	})
	require.ErrorIs(t, err, apierr.ErrValidation)
	assert.Contains(t, err.Error(), "publish mutation")
}

func TestModifyDoc_PublishedCopyMustLeaveStageFirst(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	m.PublishedCopy = true
	id := idOf(t, h.create(t, m, author, openArticle("Story")))

	_, err := h.svc.PublishDoc(context.Background(), PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
	require.NoError(t, err)

	_, err = h.svc.ModifyDoc(context.Background(), ModifyParams{Model: m, Profile: editor, ID: id, Data: bson.M{"name": "Edited"}})
	assert.ErrorIs(t, err, apierr.ErrValidation)

	doc, err := h.svc.ModifyDoc(context.Background(), ModifyParams{
		Model: m, Profile: editor, ID: id,
		Data: bson.M{"name": "Edited", "stage": schema.StageReady},
	})
	require.NoError(t, err)
	assert.Equal(t, "Edited", doc["name"])
	assert.Equal(t, schema.StageReady, doc["stage"])
}

func TestModifyDoc_Access(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)

	private := idOf(t, h.create(t, m, author, bson.M{
		"name":   "Private",
		"people": bson.M{"authors": bson.A{authorID}},
	}))
	open := idOf(t, h.create(t, m, author, openArticle("Open")))

	_, err := h.svc.ModifyDoc(context.Background(), ModifyParams{Model: m, Profile: stranger, ID: private, Data: bson.M{"name": "x"}})
	assert.ErrorIs(t, err, apierr.ErrNotFound, "invisible documents look missing")

	_, err = h.svc.ModifyDoc(context.Background(), ModifyParams{Model: m, Profile: stranger, ID: open, Data: bson.M{"name": "x"}})
	assert.ErrorIs(t, err, apierr.ErrForbidden)

	_, err = h.svc.ModifyDoc(context.Background(), ModifyParams{Model: m, Profile: stranger, ID: primitive.NewObjectID(), Data: bson.M{"name": "x"}})
	assert.ErrorIs(t, err, apierr.ErrNotFound)

	_, err = h.svc.ModifyDoc(context.Background(), ModifyParams{Model: m, Profile: author, ID: private, Data: bson.M{"name": "Renamed"}})
	assert.NoError(t, err, "authors listed on the document may modify it")
}

func TestModifyDoc_LockedRejected(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	id := idOf(t, h.create(t, m, author, openArticle("Locked")))

	_, err := h.svc.LockDoc(context.Background(), ToggleParams{Model: m, Profile: editor, ID: id, On: true})
	require.NoError(t, err)

	_, err = h.svc.ModifyDoc(context.Background(), ModifyParams{Model: m, Profile: author, ID: id, Data: bson.M{"name": "x"}})
	assert.ErrorIs(t, err, apierr.ErrForbidden)
}

func TestArchiveDoc_PublishedNeedsPublishRights(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	id := idOf(t, h.create(t, m, author, openArticle("Story")))

	_, err := h.svc.PublishDoc(context.Background(), PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
	require.NoError(t, err)

	_, err = h.svc.ArchiveDoc(context.Background(), ToggleParams{Model: m, Profile: author, ID: id, On: true})
	require.ErrorIs(t, err, apierr.ErrForbidden)

	doc, err := h.svc.ArchiveDoc(context.Background(), ToggleParams{Model: m, Profile: editor, ID: id, On: true})
	require.NoError(t, err)
	assert.Equal(t, true, doc["archived"])
	assert.Equal(t, schema.StagePublished, doc["stage"])
	assert.Equal(t, []string{"created", "published", "archived"}, historyTypes(doc))
}

func TestToggles(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	id := idOf(t, h.create(t, m, author, openArticle("Toggle")))
	ctx := context.Background()

	doc, err := h.svc.HideDoc(ctx, ToggleParams{Model: m, Profile: author, ID: id, On: true})
	require.NoError(t, err)
	assert.Equal(t, true, doc["hidden"])

	doc, err = h.svc.HideDoc(ctx, ToggleParams{Model: m, Profile: author, ID: id, On: false})
	require.NoError(t, err)
	assert.Equal(t, false, doc["hidden"])

	doc, err = h.svc.LockDoc(ctx, ToggleParams{Model: m, Profile: author, ID: id, On: true})
	require.NoError(t, err)
	assert.Equal(t, true, doc["locked"])

	assert.Equal(t, []string{"created", "hidden", "unhidden", "locked"}, historyTypes(doc))

	_, err = h.svc.HideDoc(ctx, ToggleParams{Model: m, Profile: stranger, ID: id, On: true})
	assert.ErrorIs(t, err, apierr.ErrForbidden)

	last := h.mirror.recorded()
	require.NotEmpty(t, last)
	var lockOp *crdt.FieldOp
	for _, op := range last[len(last)-1].Fields {
		if op.Path == "locked" {
			op := op
			lockOp = &op
		}
	}
	require.NotNil(t, lockOp)
	assert.Equal(t, crdt.SetBoolean, lockOp.Setter)
	assert.Equal(t, true, lockOp.Value)
}

func TestWatchDoc_Idempotent(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	id := idOf(t, h.create(t, m, author, openArticle("Watched")))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.svc.WatchDoc(ctx, WatchParams{Model: m, Profile: stranger, ID: id, Watch: true})
		require.NoError(t, err)
	}
	doc, err := h.svc.FindDoc(ctx, FindDocParams{Model: m, Value: id, FullAccess: true})
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{authorID, strangerID}, ids(schema.Get(doc, "people.watching")))

	other := primitive.NewObjectID()
	_, err = h.svc.WatchDoc(ctx, WatchParams{Model: m, Profile: author, ID: id, Watch: true, Watcher: &other})
	require.NoError(t, err)

	doc, err = h.svc.WatchDoc(ctx, WatchParams{Model: m, Profile: stranger, ID: id, Watch: false})
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{authorID, other}, ids(schema.Get(doc, "people.watching")))
}

func TestCloneDoc(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	source := openArticle("Original")
	source["slug"] = "original"
	sourceDoc := h.create(t, m, author, source)
	sourceID := idOf(t, sourceDoc)

	stored := h.store.All(m.Collection)
	require.Len(t, stored, 1)
	withState := stored[0]
	withState["__yState"] = "binary"
	require.NoError(t, h.store.ReplaceOne(context.Background(), m.Collection, sourceID, withState))

	clone, err := h.svc.CloneDoc(context.Background(), TargetParams{Model: m, Profile: editor, ID: sourceID})
	require.NoError(t, err)

	assert.NotEqual(t, sourceID, idOf(t, clone))
	assert.NotContains(t, clone, "slug")
	assert.Equal(t, editorID, schema.Get(clone, "people.created_by"))
	assert.Equal(t, []primitive.ObjectID{editorID}, ids(schema.Get(clone, "people.modified_by")))
	assert.Equal(t, editorID, schema.Get(clone, "people.last_modified_by"))
	for _, path := range []string{"name", "body", "meta.color", "meta.tags", "people.authors", "permissions", "stage", "hidden"} {
		assert.Equal(t, schema.Get(sourceDoc, path), schema.Get(clone, path), path)
	}
	assert.Equal(t, []string{"cloned"}, historyTypes(clone))

	stored = h.store.All(m.Collection)
	require.Len(t, stored, 2)
	for _, d := range stored {
		if d["_id"] != sourceID {
			assert.NotContains(t, d, "__yState")
		}
	}
}

func TestCloneDoc_NeedsModify(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	id := idOf(t, h.create(t, m, author, openArticle("Original")))

	_, err := h.svc.CloneDoc(context.Background(), TargetParams{Model: m, Profile: stranger, ID: id})
	assert.ErrorIs(t, err, apierr.ErrForbidden)
}

func TestCloneDoc_ResetsPublication(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	id := idOf(t, h.create(t, m, author, openArticle("Story")))
	_, err := h.svc.PublishDoc(context.Background(), PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
	require.NoError(t, err)

	clone, err := h.svc.CloneDoc(context.Background(), TargetParams{Model: m, Profile: editor, ID: id})
	require.NoError(t, err)
	assert.Equal(t, schema.StageReady, clone["stage"])
	assert.Nil(t, schema.Get(clone, "timestamps.published_at"))
	assert.Nil(t, schema.Get(clone, "people.published_by"))
}

func TestDeleteDoc(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	m.PublishedCopy = true
	id := idOf(t, h.create(t, m, author, openArticle("Doomed")))
	_, err := h.svc.PublishDoc(context.Background(), PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
	require.NoError(t, err)

	_, err = h.svc.DeleteDoc(context.Background(), TargetParams{Model: m, Profile: author, ID: id})
	require.ErrorIs(t, err, apierr.ErrForbidden, "delete is independent from modify")

	deleted, err := h.svc.DeleteDoc(context.Background(), TargetParams{Model: m, Profile: editor, ID: id})
	require.NoError(t, err)
	assert.Equal(t, "Doomed", deleted["name"])
	assert.Empty(t, h.store.All(m.Collection))
	assert.Empty(t, h.store.All(m.PublishedCollection()))

	changes := h.mirror.recorded()
	assert.True(t, changes[len(changes)-1].Delete)

	activities := h.audit.recorded()
	assert.Equal(t, audit.EventTypeDeleted, activities[len(activities)-1].Type)
}

func TestPublishDoc(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	m.PublishedCopy = true
	id := idOf(t, h.create(t, m, author, openArticle("News")))
	ctx := context.Background()

	_, err := h.svc.PublishDoc(ctx, PublishParams{Model: m, Profile: author, ID: id, Publish: true})
	require.ErrorIs(t, err, apierr.ErrForbidden)

	future := h.clock.Now().Add(48 * time.Hour)
	doc, err := h.svc.PublishDoc(ctx, PublishParams{Model: m, Profile: editor, ID: id, Publish: true, PublishedAt: &future})
	require.NoError(t, err)
	assert.Equal(t, schema.StageScheduled, doc["stage"])
	copies := h.store.All(m.PublishedCollection())
	require.Len(t, copies, 1, "scheduled documents are copied and filtered by date on read")
	assert.Equal(t, schema.StageScheduled, copies[0]["stage"])

	doc, err = h.svc.PublishDoc(ctx, PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
	require.NoError(t, err)
	assert.Equal(t, schema.StagePublished, doc["stage"])
	assert.Equal(t, editorID, schema.Get(doc, "people.last_published_by"))
	assert.Equal(t, []primitive.ObjectID{editorID}, ids(schema.Get(doc, "people.published_by")))

	copies = h.store.All(m.PublishedCollection())
	require.Len(t, copies, 1)
	assert.Equal(t, "News", copies[0]["name"])
	assert.Equal(t, schema.StagePublished, copies[0]["stage"])
	assert.NotContains(t, copies[0], "history")

	published, err := h.svc.FindDoc(ctx, FindDocParams{Model: m, Value: id, FullAccess: true, Published: true})
	require.NoError(t, err)
	require.NotNil(t, published)

	doc, err = h.svc.PublishDoc(ctx, PublishParams{Model: m, Profile: editor, ID: id, Publish: false})
	require.NoError(t, err)
	assert.Equal(t, schema.StageReady, doc["stage"])
	assert.Empty(t, h.store.All(m.PublishedCollection()))
	assert.Equal(t, []string{"created", "published", "published", "unpublished"}, historyTypes(doc))
}

// publicView reads a document the way the public queries do
func publicView(t *testing.T, h *harness, m *Model, id primitive.ObjectID) bson.M {
	t.Helper()
	doc, err := h.svc.FindDoc(context.Background(), FindDocParams{
		Model: m,
		Value: id,
		AccessRule: bson.M{"$and": bson.A{
			bson.M{"hidden": bson.M{"$ne": true}},
			bson.M{"archived": bson.M{"$ne": true}},
			PublishedRule(h.svc.Now()),
		}},
		Published: m.PublishedCopy,
	})
	require.NoError(t, err)
	return doc
}

func TestPublishDoc_ScheduledBecomesPublicWhenDue(t *testing.T) {
	for _, copied := range []bool{false, true} {
		t.Run(fmt.Sprintf("published copy %t", copied), func(t *testing.T) {
			h := newHarness(t)
			m := articleModel(t)
			m.PublishedCopy = copied
			id := idOf(t, h.create(t, m, author, openArticle("Embargoed")))

			at := h.clock.Now().Add(time.Hour)
			doc, err := h.svc.PublishDoc(context.Background(), PublishParams{Model: m, Profile: editor, ID: id, Publish: true, PublishedAt: &at})
			require.NoError(t, err)
			assert.Equal(t, schema.StageScheduled, doc["stage"])
			assert.Nil(t, publicView(t, h, m, id), "not public before its date")

			h.clock.Add(2 * time.Hour)
			due := publicView(t, h, m, id)
			require.NotNil(t, due, "public once its date has passed")
			assert.Equal(t, "Embargoed", due["name"])
		})
	}
}

func TestPublishedCopyFollowsHideAndArchive(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	m.PublishedCopy = true
	id := idOf(t, h.create(t, m, author, openArticle("Story")))
	ctx := context.Background()

	_, err := h.svc.PublishDoc(ctx, PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
	require.NoError(t, err)
	require.NotNil(t, publicView(t, h, m, id))

	tests := []struct {
		name   string
		toggle func(context.Context, ToggleParams) (bson.M, error)
		field  string
	}{
		{name: "hide", toggle: h.svc.HideDoc, field: "hidden"},
		{name: "archive", toggle: h.svc.ArchiveDoc, field: "archived"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.toggle(ctx, ToggleParams{Model: m, Profile: editor, ID: id, On: true})
			require.NoError(t, err)
			assert.Nil(t, publicView(t, h, m, id))
			copies := h.store.All(m.PublishedCollection())
			require.Len(t, copies, 1)
			assert.Equal(t, true, copies[0][tt.field])

			_, err = tt.toggle(ctx, ToggleParams{Model: m, Profile: editor, ID: id, On: false})
			require.NoError(t, err)
			assert.NotNil(t, publicView(t, h, m, id))
		})
	}

	_, err = h.svc.LockDoc(ctx, ToggleParams{Model: m, Profile: editor, ID: id, On: true})
	require.NoError(t, err)
	copies := h.store.All(m.PublishedCollection())
	require.Len(t, copies, 1)
	assert.NotEqual(t, true, copies[0]["locked"], "locks only concern editing")
}

func TestHideDoc_WithoutPublishedCopyLeavesNoCopy(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	m.PublishedCopy = true
	id := idOf(t, h.create(t, m, author, openArticle("Unpublished")))

	_, err := h.svc.HideDoc(context.Background(), ToggleParams{Model: m, Profile: author, ID: id, On: true})
	require.NoError(t, err)
	assert.Empty(t, h.store.All(m.PublishedCollection()))
}

func TestPublishDoc_CopyFollowsPrimaryWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("failed publish writes no copy", func(t *testing.T) {
		h := newHarness(t)
		m := articleModel(t)
		m.PublishedCopy = true
		id := idOf(t, h.create(t, m, author, openArticle("Story")))

		h.store.SetFailWrites(errBoom)
		_, err := h.svc.PublishDoc(ctx, PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
		require.ErrorIs(t, err, errBoom)
		assert.Empty(t, h.store.All(m.PublishedCollection()))
	})

	t.Run("failed unpublish keeps the copy", func(t *testing.T) {
		h := newHarness(t)
		m := articleModel(t)
		m.PublishedCopy = true
		id := idOf(t, h.create(t, m, author, openArticle("Story")))
		_, err := h.svc.PublishDoc(ctx, PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
		require.NoError(t, err)

		h.store.SetFailWrites(errBoom)
		_, err = h.svc.PublishDoc(ctx, PublishParams{Model: m, Profile: editor, ID: id, Publish: false})
		require.ErrorIs(t, err, errBoom)

		copies := h.store.All(m.PublishedCollection())
		require.Len(t, copies, 1)
		assert.Equal(t, schema.StagePublished, copies[0]["stage"])
		stored := h.store.All(m.Collection)
		require.Len(t, stored, 1)
		assert.Equal(t, schema.StagePublished, stored[0]["stage"])
	})
}

func TestPublishDoc_UnpublishKeepsDraftStage(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	created := h.create(t, m, author, openArticle("Draft"))
	id := idOf(t, created)

	doc, err := h.svc.PublishDoc(context.Background(), PublishParams{Model: m, Profile: editor, ID: id, Publish: false})
	require.NoError(t, err)
	assert.Equal(t, created["stage"], doc["stage"])
	assert.NotEqual(t, schema.StageReady, doc["stage"])
	assert.Equal(t, []string{"created", "unpublished"}, historyTypes(doc))
}

func TestModifyDoc_MirrorsClearedFields(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	id := idOf(t, h.create(t, m, author, openArticle("Story")))

	doc, err := h.svc.ModifyDoc(context.Background(), ModifyParams{Model: m, Profile: author, ID: id, Data: bson.M{"body": nil}})
	require.NoError(t, err)
	assert.Nil(t, doc["body"])

	changes := h.mirror.recorded()
	require.NotEmpty(t, changes)
	var cleared []string
	for _, op := range changes[len(changes)-1].Fields {
		if op.Setter == crdt.SetClear {
			cleared = append(cleared, op.Path)
		}
	}
	assert.Equal(t, []string{"body"}, cleared)
}

func TestPublishDoc_NotPublishable(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	m.CanPublish = false
	id := idOf(t, h.create(t, m, author, openArticle("News")))

	_, err := h.svc.PublishDoc(context.Background(), PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
	assert.ErrorIs(t, err, apierr.ErrValidation)
}

func TestMirrorFailureKeepsPrimaryWrite(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	h.mirror.result = crdt.TimedOut(context.DeadlineExceeded)

	_, err := h.svc.CreateDoc(context.Background(), CreateParams{Model: m, Profile: author, Data: openArticle("Kept")})
	require.ErrorIs(t, err, apierr.ErrUpstream)
	assert.Contains(t, err.Error(), "not mirrored")

	stored := h.store.All(m.Collection)
	require.Len(t, stored, 1)
	assert.Equal(t, "Kept", stored[0]["name"])
}

func TestNonCollaborativeSkipsMirror(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	m.Collaborative = false
	h.mirror.result = crdt.TransportError(errBoom)

	h.create(t, m, author, openArticle("Plain"))
	assert.Empty(t, h.mirror.recorded())
}

func TestActivityFailureIsBestEffort(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	h.audit.err = errBoom

	doc := h.create(t, m, author, openArticle("Still saved"))
	assert.Equal(t, "Still saved", doc["name"])
}

func TestActivityCollectionRecordsNothing(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	m.Name = audit.ActivityModelName

	h.create(t, m, author, openArticle("Activity"))
	assert.Empty(t, h.audit.recorded())
}

func TestPersistenceErrorsPropagate(t *testing.T) {
	h := newHarness(t)
	m := articleModel(t)
	h.store.SetFailWrites(errBoom)

	_, err := h.svc.CreateDoc(context.Background(), CreateParams{Model: m, Profile: author, Data: openArticle("x")})
	assert.True(t, errors.Is(err, errBoom))
	assert.Empty(t, h.audit.recorded())
	assert.Empty(t, h.mirror.recorded())
}
