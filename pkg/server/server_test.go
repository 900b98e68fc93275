package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/config"
	"github.com/platinummonkey/cristata/pkg/tenants"
)

func newTestCristata(source tenants.Source, opts ...Option) (*Cristata, *countingProvisioner) {
	prov := &countingProvisioner{}
	opts = append([]Option{WithProvisioner(prov)}, opts...)
	return New(Settings{Concurrency: 2}, source, newMemoryBackend(), opts...), prov
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{Playground: true, CORSOrigins: []string{"*"}, MaxBodyBytes: 1024},
		Tenants: config.TenantsConfig{Concurrency: 3, ResyncSchedule: "@every 1m"},
	}
	s := SettingsFromConfig(cfg)
	assert.True(t, s.Playground)
	assert.Equal(t, []string{"*"}, s.CORSOrigins)
	assert.Equal(t, int64(1024), s.MaxBodyBytes)
	assert.Equal(t, 3, s.Concurrency)
	assert.Equal(t, "@every 1m", s.ResyncSchedule)
	assert.Equal(t, time.Minute, s.BuildTimeout)
}

func TestApply_BuildsAndServesTenant(t *testing.T) {
	c, prov := newTestCristata(newFakeSource())

	require.NoError(t, c.Apply(context.Background(), tenant("acme")))

	assert.True(t, c.Known("acme"))
	assert.False(t, c.Known("other"))
	assert.Equal(t, 1, prov.count("acme"))

	compiled, ok := c.Registry().Get("acme")
	require.True(t, ok)
	_, ok = compiled.Schema.Collection("Article")
	assert.True(t, ok)
	_, ok = compiled.Schema.Collection("User")
	assert.True(t, ok, "system collections are added")
	assert.Contains(t, compiled.Schema.TypeDefs, "type Article")
}

func TestApply_RebuildsOnlyWhenHashChanges(t *testing.T) {
	c, prov := newTestCristata(newFakeSource())
	ctx := context.Background()

	acme := tenant("acme")
	require.NoError(t, c.Apply(ctx, acme))
	first, _ := c.Registry().Get("acme")

	renamed := acme
	renamed.DisplayName = "Acme Weekly"
	renamed.Billing = tenants.Billing{CustomerID: "cus_1", Status: tenants.SubscriptionActive}
	require.NoError(t, c.Apply(ctx, renamed))

	assert.Equal(t, 1, prov.count("acme"))
	current, _ := c.Registry().Get("acme")
	assert.Same(t, first.Schema, current.Schema)
	assert.Equal(t, "Acme Weekly", current.Tenant.DisplayName)

	changed := tenants.Tenant{
		Name: "acme",
		Collections: []map[string]interface{}{articleCollection(map[string]interface{}{
			"subtitle": map[string]interface{}{"type": "String"},
		})},
	}
	require.NoError(t, c.Apply(ctx, changed))

	assert.Equal(t, 2, prov.count("acme"))
	current, _ = c.Registry().Get("acme")
	assert.NotSame(t, first.Schema, current.Schema)
	assert.Contains(t, current.Schema.TypeDefs, "subtitle")
}

func TestApply_FailureKeepsPreviousSnapshot(t *testing.T) {
	c, _ := newTestCristata(newFakeSource())
	ctx := context.Background()

	require.NoError(t, c.Apply(ctx, tenant("acme")))
	before, _ := c.Registry().Get("acme")

	err := c.Apply(ctx, brokenTenant("acme"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ghost")

	after, ok := c.Registry().Get("acme")
	require.True(t, ok)
	assert.Same(t, before, after)
}

func TestApply_RejectsInvalidName(t *testing.T) {
	c, prov := newTestCristata(newFakeSource())

	err := c.Apply(context.Background(), tenant("Not Valid"))
	require.Error(t, err)
	assert.False(t, c.Known("Not Valid"))
	assert.Equal(t, 0, prov.count("Not Valid"))
}

func TestSync_AppliesAndRemoves(t *testing.T) {
	source := newFakeSource(tenant("acme"), tenant("paladin"), brokenTenant("broken"))
	c, _ := newTestCristata(source)
	ctx := context.Background()

	err := c.Sync(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant broken")
	assert.Equal(t, []string{"acme", "paladin"}, c.Registry().Names())

	source.set(tenant("paladin"))
	require.NoError(t, c.Sync(ctx))
	assert.Equal(t, []string{"paladin"}, c.Registry().Names())
}

func TestSync_ListFailure(t *testing.T) {
	source := newFakeSource(tenant("acme"))
	c, _ := newTestCristata(source)
	require.NoError(t, c.Sync(context.Background()))

	source.listErr = errors.New("connection refused")
	err := c.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list tenants")
	assert.True(t, c.Known("acme"), "a failed listing removes nothing")
}

func TestHandleEvent(t *testing.T) {
	c, _ := newTestCristata(newFakeSource())
	ctx := context.Background()

	acme := tenant("acme")
	acme.ID = primitive.NewObjectID()
	c.HandleEvent(ctx, tenants.Event{Type: tenants.EventUpsert, Tenant: acme})
	require.True(t, c.Known("acme"))

	c.HandleEvent(ctx, tenants.Event{Type: tenants.EventDelete, Tenant: tenants.Tenant{ID: acme.ID}})
	assert.False(t, c.Known("acme"))
}

func TestRun_FollowsSourceEvents(t *testing.T) {
	source := newFakeSource(tenant("acme"))
	c, _ := newTestCristata(source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.Known("acme") }, 2*time.Second, 10*time.Millisecond)

	source.events <- tenants.Event{Type: tenants.EventUpsert, Tenant: tenant("paladin")}
	require.Eventually(t, func() bool { return c.Known("paladin") }, 2*time.Second, 10*time.Millisecond)

	source.events <- tenants.Event{Type: tenants.EventDelete, Tenant: tenants.Tenant{Name: "acme"}}
	require.Eventually(t, func() bool { return !c.Known("acme") }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_ListFailure(t *testing.T) {
	source := newFakeSource()
	source.listErr = errors.New("connection refused")
	c, _ := newTestCristata(source)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRun_InvalidSchedule(t *testing.T) {
	c := New(Settings{ResyncSchedule: "not a schedule"}, newFakeSource(), newMemoryBackend())

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resync schedule")
}

func TestCompile(t *testing.T) {
	built, err := Compile(tenant("acme"))
	require.NoError(t, err)
	assert.Contains(t, built.TypeDefs, "type Article {")

	_, err = Compile(brokenTenant("acme"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant acme")
}
