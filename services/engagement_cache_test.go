package services

import (
	"testing"
	"time"

	"community-points/config"

	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T, ttl time.Duration) *EngagementCache {
	t.Helper()
	cache, err := OpenEngagementCache(config.CacheConfig{Enabled: true, EngagementTTL: ttl, ProfileTTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCachePostEntries(t *testing.T) {
	cache := openTestCache(t, time.Minute)

	_, ok := cache.GetPost("1", false)
	require.False(t, ok)

	counts := &EngagementCounts{Likes: 3}
	cache.PutPost("1", &PostData{ExternalID: "1", Counts: counts, Source: SourceScraper}, true)

	// a counts entry can't stand in for a full post
	_, ok = cache.GetPost("1", false)
	require.False(t, ok)

	got, ok := cache.GetPost("1", true)
	require.True(t, ok)
	require.Equal(t, counts, got.Counts)
}

func TestCacheProfileKeysIgnoreCase(t *testing.T) {
	cache := openTestCache(t, time.Minute)

	cache.PutProfile("Alice", &ProfileData{Username: "Alice", FollowersCount: 12})
	got, ok := cache.GetProfile("alice")
	require.True(t, ok)
	require.Equal(t, int64(12), got.FollowersCount)
}

func TestCacheZeroTTLDisablesWrites(t *testing.T) {
	cache := openTestCache(t, 0)

	cache.PutPost("1", &PostData{ExternalID: "1"}, false)
	_, ok := cache.GetPost("1", false)
	require.False(t, ok)
}
