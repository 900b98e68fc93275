package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/cristata/pkg/async"
	"github.com/platinummonkey/cristata/pkg/collection"
	"github.com/platinummonkey/cristata/pkg/config"
	"github.com/platinummonkey/cristata/pkg/crdt"
	"github.com/platinummonkey/cristata/pkg/middleware"
	"github.com/platinummonkey/cristata/pkg/observability"
	"github.com/platinummonkey/cristata/pkg/tenants"
)

// Settings tune the orchestrator and its HTTP surface
type Settings struct {
	// Playground serves the GraphQL playground at /v3/{tenant}/playground.
	Playground   bool
	CORSOrigins  []string
	MaxBodyBytes int64

	// Concurrency bounds concurrent tenant builds during a resync.
	Concurrency int
	// ResyncSchedule is a cron spec for the periodic full resync. Empty
	// disables it.
	ResyncSchedule string
	// BuildTimeout bounds one tenant build including provisioning.
	BuildTimeout time.Duration
}

// SettingsFromConfig extracts the orchestrator settings
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Playground:     cfg.Server.Playground,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Concurrency:    cfg.Tenants.Concurrency,
		ResyncSchedule: cfg.Tenants.ResyncSchedule,
		BuildTimeout:   time.Minute,
	}
}

// Cristata serves one GraphQL schema per tenant and swaps a tenant's schema
// whenever its configuration changes. Requests always run against a
// complete snapshot; a failed build keeps the previous one serving.
type Cristata struct {
	settings    Settings
	source      tenants.Source
	backend     Backend
	registry    *tenants.Registry
	provisioner tenants.Provisioner
	mirror      crdt.Mirror
	files       collection.FileSigner
	auth        *middleware.AuthMiddleware
	limiter     middleware.Limiter
	billing     http.Handler
	metrics     *observability.Metrics
	otel        *observability.OTelMetrics
	clock       clock.Clock

	locks   sync.Map
	syncing async.Once
	cron    *cron.Cron
}

// Option configures a Cristata
type Option func(*Cristata)

// WithProvisioner creates collections, validators and indexes before a
// tenant schema goes live
func WithProvisioner(p tenants.Provisioner) Option {
	return func(c *Cristata) { c.provisioner = p }
}

// WithMirror sets the CRDT mirror every mutation is forwarded to
func WithMirror(m crdt.Mirror) Option {
	return func(c *Cristata) { c.mirror = m }
}

// WithFiles enables the signS3 mutation
func WithFiles(f collection.FileSigner) Option {
	return func(c *Cristata) { c.files = f }
}

// WithAuth resolves caller profiles from bearer tokens
func WithAuth(a *middleware.AuthMiddleware) Option {
	return func(c *Cristata) { c.auth = a }
}

// WithRateLimiter limits tenant requests per caller
func WithRateLimiter(l middleware.Limiter) Option {
	return func(c *Cristata) { c.limiter = l }
}

// WithBilling mounts the Stripe webhook handler at /stripe/webhook
func WithBilling(h http.Handler) Option {
	return func(c *Cristata) { c.billing = h }
}

// WithMetrics records prometheus metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cristata) { c.metrics = m }
}

// WithOTelMetrics records OpenTelemetry metrics
func WithOTelMetrics(m *observability.OTelMetrics) Option {
	return func(c *Cristata) { c.otel = m }
}

// WithClock sets the clock used to time builds and requests
func WithClock(cl clock.Clock) Option {
	return func(c *Cristata) { c.clock = cl }
}

// New creates an orchestrator. No tenant is served until Sync or Run.
func New(settings Settings, source tenants.Source, backend Backend, opts ...Option) *Cristata {
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if settings.BuildTimeout <= 0 {
		settings.BuildTimeout = time.Minute
	}
	c := &Cristata{
		settings: settings,
		source:   source,
		backend:  backend,
		registry: tenants.NewRegistry(),
		mirror:   crdt.NoopMirror{},
		auth:     middleware.NewAuthMiddleware(nil, nil),
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the live tenant snapshots
func (c *Cristata) Registry() *tenants.Registry {
	return c.registry
}

// Known reports whether a tenant schema is being served
func (c *Cristata) Known(tenant string) bool {
	_, ok := c.registry.Get(tenant)
	return ok
}

func (c *Cristata) tenantLock(name string) *sync.Mutex {
	lock, _ := c.locks.LoadOrStore(name, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
