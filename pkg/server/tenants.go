package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/cristata/pkg/async"
	"github.com/platinummonkey/cristata/pkg/collection"
	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/observability"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/tenants"
)

// Apply builds and swaps in the schema of t. Changes that leave the
// schema hash untouched only replace the tenant record. On failure the
// previous snapshot, if any, keeps serving.
func (c *Cristata) Apply(ctx context.Context, t tenants.Tenant) error {
	lock := c.tenantLock(t.Name)
	lock.Lock()
	defer lock.Unlock()

	if !c.registry.NeedsBuild(t) {
		c.registry.UpdateTenant(t)
		return nil
	}

	logger := observability.FromContext(ctx).WithField("tenant", t.Name)
	start := c.clock.Now()
	compiled, err := c.build(ctx, t)
	elapsed := c.clock.Since(start)
	c.metrics.RecordSchemaRebuild(t.Name, elapsed, err)
	c.otel.RecordSchemaBuild(ctx, t.Name, elapsed, err)
	if err != nil {
		logger.WithError(err).Error("Tenant schema build failed")
		return fmt.Errorf("tenant %s: %w", t.Name, err)
	}

	c.registry.Store(compiled)
	c.metrics.SetTenantsLoaded(c.registry.Len())
	logger.WithFields(map[string]interface{}{
		"collections": len(compiled.Schema.Collections()),
		"duration_ms": elapsed.Milliseconds(),
	}).Info("Tenant schema loaded")
	return nil
}

func generate(t tenants.Tenant) ([]*collection.Collection, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	specs, err := t.Specs()
	if err != nil {
		return nil, err
	}
	generated := make([]*collection.Collection, 0, len(specs))
	for _, spec := range specs {
		col, err := collection.Generate(spec, t.Name)
		if err != nil {
			return nil, err
		}
		generated = append(generated, col)
	}
	return generated, nil
}

// Compile builds the schema of t without any storage. The result is only
// good for checking a configuration; its resolvers cannot run.
func Compile(t tenants.Tenant) (*collection.Schema, error) {
	generated, err := generate(t)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", t.Name, err)
	}
	built, err := collection.Build(t.Name, generated, collection.Deps{})
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", t.Name, err)
	}
	return built, nil
}

func (c *Cristata) build(ctx context.Context, t tenants.Tenant) (*tenants.Compiled, error) {
	generated, err := generate(t)
	if err != nil {
		return nil, err
	}

	activity, err := c.backend.Activity(ctx, t.Name)
	if err != nil {
		return nil, err
	}
	docs := documents.NewService(
		c.backend.Store(t.Name),
		rbac.NewPermissionChecker(c.backend.Teams(t.Name)),
		documents.WithMirror(c.mirror),
		documents.WithAuditLogger(activity),
		documents.WithMetrics(c.metrics),
	)
	deps := collection.Deps{Documents: docs}
	if c.files != nil {
		deps.Files = c.files
	}
	built, err := collection.Build(t.Name, generated, deps)
	if err != nil {
		return nil, err
	}

	if c.provisioner != nil {
		if err := c.provisioner.Provision(ctx, t.Name, built.Collections()); err != nil {
			return nil, fmt.Errorf("provision: %w", err)
		}
	}
	return &tenants.Compiled{Tenant: t, Hash: t.Hash(), Schema: built}, nil
}

// Remove stops serving a tenant. Tenants without a name are matched by id.
func (c *Cristata) Remove(ctx context.Context, t tenants.Tenant) {
	name, ok := c.registry.Remove(t)
	if !ok {
		return
	}
	c.metrics.SetTenantsLoaded(c.registry.Len())
	observability.FromContext(ctx).WithField("tenant", name).Info("Tenant removed")
}

// Sync lists every tenant, applies each with bounded concurrency and drops
// tenants that are no longer listed. Build failures are joined into the
// returned error; the remaining tenants are still applied.
func (c *Cristata) Sync(ctx context.Context) error {
	list, err := c.source.List(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	return c.syncList(ctx, list)
}

func (c *Cristata) syncList(ctx context.Context, list []tenants.Tenant) error {
	errs := async.Batch(ctx, list, c.settings.Concurrency, "build tenant", c.settings.BuildTimeout, c.Apply)

	listed := make(map[string]bool, len(list))
	for _, t := range list {
		listed[t.Name] = true
	}
	for _, name := range c.registry.Names() {
		if !listed[name] {
			c.Remove(ctx, tenants.Tenant{Name: name})
		}
	}
	return errors.Join(errs...)
}

// resync runs Sync unless one is already running
func (c *Cristata) resync(ctx context.Context) {
	c.syncing.Try("sync", func() {
		if err := c.Sync(ctx); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Tenant resync incomplete")
		}
	})
}

// HandleEvent applies one change reported by the tenant source
func (c *Cristata) HandleEvent(ctx context.Context, event tenants.Event) {
	switch event.Type {
	case tenants.EventUpsert:
		// Apply logs its own failure
		_ = c.Apply(ctx, event.Tenant)
	case tenants.EventDelete:
		c.Remove(ctx, event.Tenant)
	}
}

// Run performs the initial sync, then follows the tenant source and the
// resync schedule until ctx is done. Only a failure to list tenants on
// startup is returned.
func (c *Cristata) Run(ctx context.Context) error {
	logger := observability.FromContext(ctx)
	list, err := c.source.List(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	if err := c.syncList(ctx, list); err != nil {
		logger.WithError(err).Warn("Initial tenant sync incomplete")
	}
	logger.Infof("Serving %d tenants", c.registry.Len())

	if c.settings.ResyncSchedule != "" {
		c.cron = cron.New()
		if _, err := c.cron.AddFunc(c.settings.ResyncSchedule, func() { c.resync(ctx) }); err != nil {
			return fmt.Errorf("resync schedule: %w", err)
		}
		c.cron.Start()
		defer func() {
			<-c.cron.Stop().Done()
		}()
	}

	c.watch(ctx)
	return nil
}

// watch follows the tenant source, restarting it with exponential backoff.
// Every restart is followed by a full resync to pick up missed changes.
func (c *Cristata) watch(ctx context.Context) {
	logger := observability.FromContext(ctx)
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0

	for {
		started := c.clock.Now()
		err := c.source.Watch(ctx, func(event tenants.Event) {
			c.HandleEvent(ctx, event)
		})
		if ctx.Err() != nil {
			return
		}
		if c.clock.Since(started) > policy.MaxInterval {
			policy.Reset()
		}
		wait := policy.NextBackOff()
		logger.WithError(err).Warnf("Tenant watch stopped, restarting in %s", wait)

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(wait):
		}
		c.resync(ctx)
	}
}
