package rbac

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTeamCache(t *testing.T, next TeamResolver) (*TeamCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	return NewTeamCache(DefaultCacheConfig("paladin"), next, rdb), mr
}

func TestTeamCache_L1(t *testing.T) {
	next := &fakeTeams{slugs: map[string]string{"editors": "e1"}}
	cache, _ := setupTeamCache(t, next)
	ctx := context.Background()

	ids, err := cache.ResolveSlugs(ctx, []string{"editors"})
	require.NoError(t, err)
	assert.Equal(t, "e1", ids["editors"])

	ids, err = cache.ResolveSlugs(ctx, []string{"editors"})
	require.NoError(t, err)
	assert.Equal(t, "e1", ids["editors"])

	assert.Equal(t, 1, next.calls)
	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.L1Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestTeamCache_L2SharedAcrossInstances(t *testing.T) {
	next := &fakeTeams{slugs: map[string]string{"editors": "e1"}}
	first, mr := setupTeamCache(t, next)
	ctx := context.Background()

	_, err := first.ResolveSlugs(ctx, []string{"editors"})
	require.NoError(t, err)
	first.Flush()
	assert.True(t, mr.Exists("cristata:paladin:team-slug:editors"))
	assert.Equal(t, 10*time.Minute, mr.TTL("cristata:paladin:team-slug:editors"))

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	other := &fakeTeams{}
	second := NewTeamCache(DefaultCacheConfig("paladin"), other, rdb)

	ids, err := second.ResolveSlugs(ctx, []string{"editors"})
	require.NoError(t, err)
	assert.Equal(t, "e1", ids["editors"])
	assert.Equal(t, 0, other.calls)
	assert.Equal(t, int64(1), second.Stats().L2Hits)
}

func TestTeamCache_BackfillOutlivesRequest(t *testing.T) {
	next := &fakeTeams{slugs: map[string]string{"editors": "e1", "writers": "w1"}}
	cache, mr := setupTeamCache(t, next)
	ctx, cancel := context.WithCancel(context.Background())

	ids, err := cache.ResolveSlugs(ctx, []string{"editors", "writers"})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	cancel()

	require.Eventually(t, func() bool {
		return mr.Exists("cristata:paladin:team-slug:editors") && mr.Exists("cristata:paladin:team-slug:writers")
	}, time.Second, 10*time.Millisecond)
	got, err := mr.Get("cristata:paladin:team-slug:writers")
	require.NoError(t, err)
	assert.Equal(t, "w1", got)
}

func TestTeamCache_UnknownSlugsAbsent(t *testing.T) {
	cache, _ := setupTeamCache(t, &fakeTeams{slugs: map[string]string{}})

	ids, err := cache.ResolveSlugs(context.Background(), []string{"ghosts"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTeamCache_Invalidate(t *testing.T) {
	next := &fakeTeams{slugs: map[string]string{"editors": "e1"}}
	cache, mr := setupTeamCache(t, next)
	ctx := context.Background()

	_, err := cache.ResolveSlugs(ctx, []string{"editors"})
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, "editors"))
	assert.False(t, mr.Exists("cristata:paladin:team-slug:editors"))

	next.slugs["editors"] = "e2"
	ids, err := cache.ResolveSlugs(ctx, []string{"editors"})
	require.NoError(t, err)
	assert.Equal(t, "e2", ids["editors"])
}

func TestTeamCache_RedisDownFallsThrough(t *testing.T) {
	next := &fakeTeams{slugs: map[string]string{"editors": "e1"}}
	cache, mr := setupTeamCache(t, next)
	mr.Close()

	ids, err := cache.ResolveSlugs(context.Background(), []string{"editors"})
	require.NoError(t, err)
	assert.Equal(t, "e1", ids["editors"])
}

func TestTeamCache_WithoutRedis(t *testing.T) {
	next := &fakeTeams{slugs: map[string]string{"editors": "e1"}}
	cache := NewTeamCache(CacheConfig{Tenant: "paladin"}, next, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := cache.ResolveSlugs(context.Background(), []string{"editors"})
			assert.NoError(t, err)
			assert.Equal(t, "e1", ids["editors"])
		}()
	}
	wg.Wait()
}
