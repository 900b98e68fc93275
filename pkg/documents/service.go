package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/audit"
	"github.com/platinummonkey/cristata/pkg/crdt"
	"github.com/platinummonkey/cristata/pkg/observability"
	"github.com/platinummonkey/cristata/pkg/rbac"
)

var tracer = otel.Tracer("github.com/platinummonkey/cristata/pkg/documents")

// Service reads and mutates documents of generated collections
type Service struct {
	store   Store
	checker rbac.Checker
	mirror  crdt.Mirror
	audit   audit.Logger
	clock   clock.Clock
	metrics *observability.Metrics
}

// Option configures a Service
type Option func(*Service)

// WithMirror sets the collaborative document mirror
func WithMirror(m crdt.Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithAuditLogger sets where activity records go
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Service) { s.audit = l }
}

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMetrics records query and mutation metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a document service
func NewService(store Store, checker rbac.Checker, opts ...Option) *Service {
	s := &Service{
		store:   store,
		checker: checker,
		mirror:  crdt.NoopMirror{},
		audit:   audit.NoOpLogger{},
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock in UTC
func (s *Service) Now() time.Time {
	return s.clock.Now().UTC()
}

// Checker returns the permission checker used by the service
func (s *Service) Checker() rbac.Checker {
	return s.checker
}

// accessFilter returns the condition limiting which documents the caller
// may see. An empty filter admits everything.
func (s *Service) accessFilter(ctx context.Context, m *Model, profile *rbac.Profile, fullAccess bool, custom bson.M) (bson.M, error) {
	if fullAccess {
		return bson.M{}, nil
	}
	if custom != nil {
		return custom, nil
	}
	if !m.WithPermissions {
		return bson.M{}, nil
	}
	if profile == nil {
		return rbac.AccessFilter(nil), nil
	}

	bypass, err := s.bypasses(ctx, m, profile)
	if err != nil {
		return nil, err
	}
	if bypass {
		return bson.M{}, nil
	}
	return rbac.AccessFilter(profile), nil
}

// bypasses reports whether the profile skips document permissions, either
// as an administrator or through the bypassDocPermissions action.
func (s *Service) bypasses(ctx context.Context, m *Model, profile *rbac.Profile) (bool, error) {
	admin, err := s.checker.IsAdmin(ctx, profile)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	res, err := s.checker.CanDo(ctx, rbac.PermissionCheck{
		Collection: m.Name,
		Action:     rbac.ActionBypassDocPermissions,
		Access:     m.Access,
		Profile:    profile,
	})
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// require evaluates an action and converts a denial into a forbidden error
func (s *Service) require(ctx context.Context, m *Model, action rbac.Action, profile *rbac.Profile, doc map[string]interface{}) error {
	res, err := s.checker.CanDo(ctx, rbac.PermissionCheck{
		Collection: m.Name,
		Action:     action,
		Access:     m.Access,
		Profile:    profile,
		Doc:        doc,
	})
	if err != nil {
		return err
	}
	if !res.Allowed {
		s.metrics.RecordPermissionDenied(m.Tenant, m.Name, string(action))
		return apierr.Forbidden("you cannot %s this %s", action, m.Name)
	}
	return nil
}

// mirrorChange applies a change to the collaborative store. Failures are
// returned; the primary write has already happened and stays.
func (s *Service) mirrorChange(ctx context.Context, m *Model, change crdt.Change) error {
	if !m.Collaborative {
		return nil
	}
	ctx, span := tracer.Start(ctx, "documents.mirror")
	defer span.End()

	res := s.mirror.Apply(ctx, change)
	s.metrics.RecordMirror(m.Tenant, res.Status.String())
	if err := res.Error(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("document %s saved but not mirrored: %w", change.Document, err)
	}
	return nil
}

// recordActivity writes an activity record. Failures are logged only.
func (s *Service) recordActivity(ctx context.Context, m *Model, activity *audit.Activity) {
	if m.Name == audit.ActivityModelName {
		return
	}
	if err := s.audit.Record(ctx, activity); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("collection", m.Name).
			WithField("doc_id", activity.DocID.Hex()).
			Warn("failed to record activity")
	}
}
