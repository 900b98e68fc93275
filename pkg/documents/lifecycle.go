package documents

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/audit"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// ToggleParams sets or clears a boolean lifecycle flag
type ToggleParams struct {
	Model   *Model
	Profile *rbac.Profile
	ID      primitive.ObjectID
	On      bool
}

// WatchParams adds or removes a watcher
type WatchParams struct {
	Model   *Model
	Profile *rbac.Profile
	ID      primitive.ObjectID
	Watch   bool
	// Watcher defaults to the caller.
	Watcher *primitive.ObjectID
}

// PublishParams publishes or unpublishes a document
type PublishParams struct {
	Model   *Model
	Profile *rbac.Profile
	ID      primitive.ObjectID
	Publish bool
	// PublishedAt defaults to now. A future time schedules the document.
	PublishedAt *time.Time
}

type flag struct {
	field   string
	action  rbac.Action
	on, off audit.EventType
	// copied flags are carried onto the published copy
	copied bool
}

var (
	hiddenFlag   = flag{field: "hidden", action: rbac.ActionHide, on: audit.EventTypeHidden, off: audit.EventTypeUnhidden, copied: true}
	archivedFlag = flag{field: "archived", action: rbac.ActionArchive, on: audit.EventTypeArchived, off: audit.EventTypeUnarchived, copied: true}
	lockedFlag   = flag{field: "locked", action: rbac.ActionLock, on: audit.EventTypeLocked, off: audit.EventTypeUnlocked}
)

// HideDoc hides or unhides a document
func (s *Service) HideDoc(ctx context.Context, p ToggleParams) (bson.M, error) {
	return s.toggle(ctx, p, hiddenFlag)
}

// ArchiveDoc archives or unarchives a document. The stage is left as is.
func (s *Service) ArchiveDoc(ctx context.Context, p ToggleParams) (bson.M, error) {
	return s.toggle(ctx, p, archivedFlag)
}

// LockDoc locks or unlocks a document
func (s *Service) LockDoc(ctx context.Context, p ToggleParams) (bson.M, error) {
	return s.toggle(ctx, p, lockedFlag)
}

func (s *Service) toggle(ctx context.Context, p ToggleParams, f flag) (doc bson.M, err error) {
	ctx, span, mu, err := s.begin(ctx, p.Model, p.Profile, f.action)
	defer func() { s.finish(span, p.Model, f.action, err) }()
	if err != nil {
		return nil, err
	}
	m := p.Model

	current, err := s.load(ctx, m, p.Profile, p.ID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, m, f.action, p.Profile, current); err != nil {
		return nil, err
	}
	if m.CanPublish && isPublished(current) {
		res, err := s.checker.CanDo(ctx, rbac.PermissionCheck{
			Collection: m.Name,
			Action:     rbac.ActionPublish,
			Access:     m.Access,
			Profile:    p.Profile,
			Doc:        current,
		})
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			s.metrics.RecordPermissionDenied(m.Tenant, m.Name, string(rbac.ActionPublish))
			return nil, apierr.Forbidden("you cannot %s a published %s without publish permissions", f.action, m.Name)
		}
	}

	event := audit.Toggle(p.On, f.on, f.off)
	doc = schema.CloneDoc(current)
	doc[f.field] = p.On
	touch(doc, p.Profile.ID, mu.now)
	appendHistory(doc, audit.HistoryEntry{Type: event, User: p.Profile.ID, At: mu.now})

	if m.PublishedCopy && f.copied {
		mu.afterPersist = func(ctx context.Context) error {
			return s.flagPublishedCopy(ctx, m, p.ID, f.field, p.On)
		}
	}

	mirrored := bson.M{f.field: p.On}
	schema.Set(mirrored, "timestamps.modified_at", mu.now)
	schema.Set(mirrored, "people.last_modified_by", p.Profile.ID)
	return s.commit(ctx, mu, current, doc, event, mirrored)
}

// flagPublishedCopy sets a lifecycle flag on the published copy, if any, so
// public reads stop or resume serving it along with the primary.
func (s *Service) flagPublishedCopy(ctx context.Context, m *Model, id primitive.ObjectID, field string, on bool) error {
	found, err := s.store.Aggregate(ctx, m.PublishedCollection(), bson.A{
		bson.M{"$match": bson.M{"_id": id}},
		bson.M{"$limit": 1},
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}
	published := found[0]
	published[field] = on
	return s.store.ReplaceOne(ctx, m.PublishedCollection(), id, published)
}

// WatchDoc adds or removes one watcher. Adding an existing watcher and
// removing an absent one are no-ops on the list.
func (s *Service) WatchDoc(ctx context.Context, p WatchParams) (doc bson.M, err error) {
	ctx, span, mu, err := s.begin(ctx, p.Model, p.Profile, rbac.ActionWatch)
	defer func() { s.finish(span, p.Model, rbac.ActionWatch, err) }()
	if err != nil {
		return nil, err
	}
	m := p.Model

	current, err := s.load(ctx, m, p.Profile, p.ID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, m, rbac.ActionWatch, p.Profile, current); err != nil {
		return nil, err
	}

	watcher := p.Profile.ID
	if p.Watcher != nil {
		watcher = *p.Watcher
	}

	doc = schema.CloneDoc(current)
	watching := schema.Get(doc, "people.watching")
	if p.Watch {
		schema.Set(doc, "people.watching", addID(watching, watcher))
	} else {
		schema.Set(doc, "people.watching", removeID(watching, watcher))
	}
	event := audit.Toggle(p.Watch, audit.EventTypeWatched, audit.EventTypeUnwatched)
	appendHistory(doc, audit.HistoryEntry{Type: event, User: p.Profile.ID, At: mu.now})

	mirrored := bson.M{}
	schema.Set(mirrored, "people.watching", schema.Get(doc, "people.watching"))
	return s.commit(ctx, mu, current, doc, event, mirrored)
}

// PublishDoc publishes or unpublishes a document. Publishing into the
// future schedules it instead. Collections with an independent published
// copy get that copy written or removed.
func (s *Service) PublishDoc(ctx context.Context, p PublishParams) (doc bson.M, err error) {
	ctx, span, mu, err := s.begin(ctx, p.Model, p.Profile, rbac.ActionPublish)
	defer func() { s.finish(span, p.Model, rbac.ActionPublish, err) }()
	if err != nil {
		return nil, err
	}
	m := p.Model
	if !m.CanPublish {
		return nil, apierr.Validation(m.Name + " documents cannot be published")
	}

	current, err := s.load(ctx, m, p.Profile, p.ID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, m, rbac.ActionPublish, p.Profile, current); err != nil {
		return nil, err
	}

	doc = schema.CloneDoc(current)
	mirrored := bson.M{}
	event := audit.EventTypeUnpublished
	if p.Publish {
		event = audit.EventTypePublished
		publishedAt := mu.now
		if p.PublishedAt != nil {
			publishedAt = p.PublishedAt.UTC()
		}
		stage := schema.StagePublished
		if publishedAt.After(mu.now) {
			stage = schema.StageScheduled
		}
		doc["stage"] = stage
		schema.Set(doc, "timestamps.published_at", publishedAt)
		schema.Set(doc, "timestamps.updated_at", mu.now)
		schema.Set(doc, "people.published_by", addID(schema.Get(doc, "people.published_by"), p.Profile.ID))
		schema.Set(doc, "people.last_published_by", p.Profile.ID)
		for _, path := range []string{"stage", "timestamps.published_at", "timestamps.updated_at", "people.published_by", "people.last_published_by"} {
			schema.Set(mirrored, path, schema.Get(doc, path))
		}
	} else if stage, ok := stageOf(doc); ok && stage >= schema.StageScheduled {
		// only published and scheduled documents fall back to ready; drafts
		// keep their stage
		doc["stage"] = schema.StageReady
		mirrored["stage"] = schema.StageReady
	}
	touch(doc, p.Profile.ID, mu.now)
	appendHistory(doc, audit.HistoryEntry{Type: event, User: p.Profile.ID, At: mu.now})

	if m.PublishedCopy {
		// scheduled documents get their copy too; public reads filter on
		// the publish date
		published := schema.CloneDoc(doc)
		delete(published, "history")
		stripInternal(published)
		mu.afterPersist = func(ctx context.Context) error {
			if stage, ok := stageOf(published); ok && stage >= schema.StageScheduled {
				return s.store.ReplaceOne(ctx, m.PublishedCollection(), p.ID, published)
			}
			return s.store.DeleteOne(ctx, m.PublishedCollection(), p.ID)
		}
	}

	return s.commit(ctx, mu, current, doc, event, mirrored)
}
