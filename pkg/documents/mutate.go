package documents

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/audit"
	"github.com/platinummonkey/cristata/pkg/crdt"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// CreateParams describes a new document
type CreateParams struct {
	Model   *Model
	Profile *rbac.Profile
	Data    bson.M
}

// ModifyParams describes a patch to an existing document
type ModifyParams struct {
	Model   *Model
	Profile *rbac.Profile
	ID      primitive.ObjectID
	Data    bson.M
}

// TargetParams addresses one existing document
type TargetParams struct {
	Model   *Model
	Profile *rbac.Profile
	ID      primitive.ObjectID
}

// mutation carries the state shared by every mutation step
type mutation struct {
	model   *Model
	profile *rbac.Profile
	action  rbac.Action
	now     time.Time
	// afterPersist runs once the primary write succeeded
	afterPersist func(context.Context) error
}

func (s *Service) begin(ctx context.Context, m *Model, profile *rbac.Profile, action rbac.Action) (context.Context, trace.Span, *mutation, error) {
	ctx, span := tracer.Start(ctx, "documents."+string(action), trace.WithAttributes(
		attribute.String("collection", m.Name),
		attribute.String("tenant", m.Tenant),
	))
	if profile == nil {
		return ctx, span, nil, apierr.Unauthenticated("")
	}
	return ctx, span, &mutation{model: m, profile: profile, action: action, now: s.clock.Now().UTC()}, nil
}

func (s *Service) finish(span trace.Span, m *Model, action rbac.Action, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apierr.KindOf(err))
		span.RecordError(err)
	}
	s.metrics.RecordMutation(m.Tenant, m.Name, string(action), outcome)
	span.End()
}

// load fetches the target with full access and hides documents the caller
// cannot see behind the same not-found error as missing ones.
func (s *Service) load(ctx context.Context, m *Model, profile *rbac.Profile, id primitive.ObjectID) (bson.M, error) {
	doc, err := s.FindDoc(ctx, FindDocParams{Model: m, Profile: profile, By: "_id", Value: id, FullAccess: true})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apierr.NotFound(m.Name)
	}
	if m.WithPermissions && !rbac.DocumentVisible(profile, doc) {
		bypass, err := s.bypasses(ctx, m, profile)
		if err != nil {
			return nil, err
		}
		if !bypass {
			return nil, apierr.NotFound(m.Name)
		}
	}
	return doc, nil
}

// reread returns the persisted document after a mutation
func (s *Service) reread(ctx context.Context, m *Model, id primitive.ObjectID) (bson.M, error) {
	doc, err := s.FindDoc(ctx, FindDocParams{Model: m, By: "_id", Value: id, FullAccess: true})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apierr.NotFound(m.Name)
	}
	return doc, nil
}

// commit runs the steps that follow an in-memory change: persist, record
// activity, mirror and re-read.
func (s *Service) commit(ctx context.Context, mu *mutation, before, after bson.M, event audit.EventType, mirrored bson.M) (bson.M, error) {
	m := mu.model
	id, _ := objectID(after["_id"])

	if before == nil {
		if err := s.store.InsertOne(ctx, m.Collection, after); err != nil {
			return nil, err
		}
	} else if err := s.store.ReplaceOne(ctx, m.Collection, id, after); err != nil {
		return nil, err
	}
	if mu.afterPersist != nil {
		if err := mu.afterPersist(ctx); err != nil {
			return nil, fmt.Errorf("%s %s saved but its published copy was not updated: %w", m.Name, id.Hex(), err)
		}
	}

	activity := audit.NewActivity(m.Name, id, docName(after), event, mu.profile.ID, mu.now)
	if before != nil {
		activity.WithDiff(before, after)
	}
	s.recordActivity(ctx, m, activity)

	change := crdt.Change{
		Document: crdt.DocName(m.Tenant, m.Name, id.Hex()),
		Fields:   crdt.Ops(m.Def, mirrored),
	}
	if err := s.mirrorChange(ctx, m, change); err != nil {
		return nil, err
	}

	return s.reread(ctx, m, id)
}

// CreateDoc inserts a new document owned by the caller
func (s *Service) CreateDoc(ctx context.Context, p CreateParams) (doc bson.M, err error) {
	ctx, span, mu, err := s.begin(ctx, p.Model, p.Profile, rbac.ActionCreate)
	defer func() { s.finish(span, p.Model, rbac.ActionCreate, err) }()
	if err != nil {
		return nil, err
	}
	m := p.Model

	data := sanitizeInput(p.Data)
	if stage, ok := stageOf(data); ok && stage == schema.StagePublished {
		return nil, apierr.Validation("use the publish mutation to publish this document")
	}
	if err := s.require(ctx, m, rbac.ActionCreate, p.Profile, data); err != nil {
		return nil, err
	}

	doc = schema.Defaults(m.Def)
	schema.DeepMerge(doc, data)
	doc["_id"] = primitive.NewObjectIDFromTimestamp(mu.now)
	schema.Set(doc, "timestamps.created_at", mu.now)
	schema.Set(doc, "people.created_by", p.Profile.ID)
	schema.Set(doc, "people.watching", addID(schema.Get(doc, "people.watching"), p.Profile.ID))
	touch(doc, p.Profile.ID, mu.now)
	addMandatoryWatchers(m, doc)
	if m.WithPermissions {
		if users, _ := schema.AsSlice(schema.Get(doc, "permissions.users")); len(users) == 0 {
			schema.Set(doc, "permissions.users", bson.A{p.Profile.ID})
		}
		if schema.Get(doc, "permissions.teams") == nil {
			schema.Set(doc, "permissions.teams", bson.A{})
		}
	}
	doc["history"] = bson.A{}
	appendHistory(doc, audit.HistoryEntry{Type: audit.EventTypeCreated, User: p.Profile.ID, At: mu.now})

	return s.commit(ctx, mu, nil, doc, audit.EventTypeCreated, doc)
}

// ModifyDoc deep-merges a patch onto an existing document
func (s *Service) ModifyDoc(ctx context.Context, p ModifyParams) (doc bson.M, err error) {
	ctx, span, mu, err := s.begin(ctx, p.Model, p.Profile, rbac.ActionModify)
	defer func() { s.finish(span, p.Model, rbac.ActionModify, err) }()
	if err != nil {
		return nil, err
	}
	m := p.Model

	data := sanitizeInput(p.Data)
	stage, hasStage := stageOf(data)
	if hasStage && stage == schema.StagePublished {
		return nil, apierr.Validation("use the publish mutation to publish this document")
	}

	current, err := s.load(ctx, m, p.Profile, p.ID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, m, rbac.ActionModify, p.Profile, current); err != nil {
		return nil, err
	}
	if locked, _ := current["locked"].(bool); locked {
		return nil, apierr.Forbidden("this %s is locked", m.Name)
	}
	if live, ok := stageOf(current); m.PublishedCopy && ok && live >= schema.StageScheduled && !hasStage {
		return nil, apierr.Validation("this document is published; change its stage before modifying it")
	}

	doc = schema.CloneDoc(current)
	schema.DeepMerge(doc, data)
	touch(doc, p.Profile.ID, mu.now)
	addMandatoryWatchers(m, doc)
	appendHistory(doc, audit.HistoryEntry{Type: audit.EventTypePatched, User: p.Profile.ID, At: mu.now})

	mirrored := schema.CloneDoc(data)
	schema.Set(mirrored, "timestamps.modified_at", mu.now)
	schema.Set(mirrored, "people.last_modified_by", p.Profile.ID)
	schema.Set(mirrored, "people.modified_by", schema.Get(doc, "people.modified_by"))
	schema.Set(mirrored, "people.watching", schema.Get(doc, "people.watching"))

	return s.commit(ctx, mu, current, doc, audit.EventTypePatched, mirrored)
}

// CloneDoc creates a modifiable copy of a document. The copy gets a new
// identity, no slug and the caller as its creator.
func (s *Service) CloneDoc(ctx context.Context, p TargetParams) (doc bson.M, err error) {
	ctx, span, mu, err := s.begin(ctx, p.Model, p.Profile, rbac.ActionCreate)
	defer func() { s.finish(span, p.Model, "clone", err) }()
	if err != nil {
		return nil, err
	}
	m := p.Model

	source, err := s.load(ctx, m, p.Profile, p.ID)
	if err != nil {
		return nil, err
	}
	for _, action := range []rbac.Action{rbac.ActionCreate, rbac.ActionModify} {
		if err := s.require(ctx, m, action, p.Profile, source); err != nil {
			return nil, err
		}
	}

	doc = schema.CloneDoc(source)
	delete(doc, "_id")
	delete(doc, "slug")
	stripInternal(doc)
	// a clone starts as an unpublished draft: a published source drops back
	// to ready and loses its publish timestamps and publishers
	if stage, ok := stageOf(doc); ok && stage >= schema.StageScheduled {
		doc["stage"] = schema.StageReady
		schema.Unset(doc, "timestamps.published_at")
		schema.Unset(doc, "timestamps.updated_at")
		schema.Unset(doc, "people.published_by")
		schema.Unset(doc, "people.last_published_by")
	}

	doc["_id"] = primitive.NewObjectIDFromTimestamp(mu.now)
	schema.Set(doc, "timestamps.created_at", mu.now)
	schema.Set(doc, "timestamps.modified_at", mu.now)
	schema.Set(doc, "people.created_by", p.Profile.ID)
	schema.Set(doc, "people.modified_by", bson.A{p.Profile.ID})
	schema.Set(doc, "people.last_modified_by", p.Profile.ID)
	doc["history"] = bson.A{}
	appendHistory(doc, audit.HistoryEntry{Type: audit.EventTypeCloned, User: p.Profile.ID, At: mu.now})

	return s.commit(ctx, mu, nil, doc, audit.EventTypeCloned, doc)
}

// DeleteDoc removes a document, its published copy and its collaborative
// mirror. It returns the document as it was before deletion.
func (s *Service) DeleteDoc(ctx context.Context, p TargetParams) (doc bson.M, err error) {
	ctx, span, mu, err := s.begin(ctx, p.Model, p.Profile, rbac.ActionDelete)
	defer func() { s.finish(span, p.Model, rbac.ActionDelete, err) }()
	if err != nil {
		return nil, err
	}
	m := p.Model

	doc, err = s.load(ctx, m, p.Profile, p.ID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, m, rbac.ActionDelete, p.Profile, doc); err != nil {
		return nil, err
	}

	if err := s.store.DeleteOne(ctx, m.Collection, p.ID); err != nil {
		return nil, err
	}
	if m.PublishedCopy {
		if err := s.store.DeleteOne(ctx, m.PublishedCollection(), p.ID); err != nil {
			return nil, fmt.Errorf("failed to delete published copy: %w", err)
		}
	}

	s.recordActivity(ctx, m, audit.NewActivity(m.Name, p.ID, docName(doc), audit.EventTypeDeleted, p.Profile.ID, mu.now))

	change := crdt.Change{Document: crdt.DocName(m.Tenant, m.Name, p.ID.Hex()), Delete: true}
	if err := s.mirrorChange(ctx, m, change); err != nil {
		return nil, err
	}
	return doc, nil
}
