package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, zerolog.Nop()), mr
}

type payload struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, DomainVotingStats, "B1", payload{Name: "x", Count: 3}, Tag(DomainVotingStats, "B1"))

	var got payload
	require.True(t, c.Get(ctx, DomainVotingStats, "B1", &got))
	assert.Equal(t, payload{Name: "x", Count: 3}, got)

	// The entry carries the domain TTL.
	ttl := mr.TTL("cache:voting-stats:B1")
	assert.Equal(t, 180*time.Second, ttl)
}

func TestCache_MissOnAbsent(t *testing.T) {
	c, _ := newTestCache(t)

	var got payload
	assert.False(t, c.Get(context.Background(), DomainVotingStats, "nope", &got))
}

func TestCache_DomainsAreIsolated(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, DomainVotingStats, "B1", payload{Count: 1})

	var got payload
	assert.False(t, c.Get(ctx, DomainVotingAnalytics, "B1", &got))
	assert.True(t, c.Get(ctx, DomainVotingStats, "B1", &got))
}

func TestCache_InvalidateByTags(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, DomainVotingStats, "B1", payload{Count: 1}, Tag(DomainVotingStats, "B1"))
	c.Set(ctx, DomainPendingVotes, "B1", payload{Count: 2}, Tag(DomainPendingVotes, "B1"))
	c.Set(ctx, DomainVotingStats, "B2", payload{Count: 3}, Tag(DomainVotingStats, "B2"))

	c.InvalidateByTags(ctx, Tag(DomainVotingStats, "B1"), Tag(DomainPendingVotes, "B1"))

	var got payload
	assert.False(t, c.Get(ctx, DomainVotingStats, "B1", &got), "tagged entry must be gone")
	assert.False(t, c.Get(ctx, DomainPendingVotes, "B1", &got), "tagged entry must be gone")
	assert.True(t, c.Get(ctx, DomainVotingStats, "B2", &got), "other business untouched")

	// Invalidating an unknown tag is harmless.
	c.InvalidateByTags(ctx, Tag(DomainVotingStats, "ghost"))
	c.InvalidateByTags(ctx)
}

func TestCache_UndecodableEntryDropped(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("cache:voting-stats:B1", "not json"))

	var got payload
	assert.False(t, c.Get(ctx, DomainVotingStats, "B1", &got))
	// The poisoned key is removed so the next write starts clean.
	assert.False(t, mr.Exists("cache:voting-stats:B1"))
}

func TestCache_BackendDownIsNonFatal(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	var got payload
	assert.False(t, c.Get(ctx, DomainVotingStats, "B1", &got), "read falls through")
	c.Set(ctx, DomainVotingStats, "B1", payload{Count: 1})       // logged, ignored
	c.InvalidateByTags(ctx, Tag(DomainVotingStats, "B1"))        // logged, ignored
	assert.Error(t, c.Health(ctx))
}
