package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutThenGetWithinTTL(t *testing.T) {
	c := NewCache(5 * time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Put("req-1", Result{MDVersion: "abc"}, 1, 2, now)

	got, ok := c.Get("req-1", now.Add(1*time.Minute))
	require.True(t, ok)
	assert.Equal(t, "abc", got.MDVersion)
}

func TestCache_ExpiredEntryEvictedOnRead(t *testing.T) {
	c := NewCache(5 * time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Put("req-1", Result{MDVersion: "abc"}, 1, 2, now)

	_, ok := c.Get("req-1", now.Add(10*time.Minute))
	assert.False(t, ok)

	// The stale entry must actually be removed, not just reported absent.
	_, ok = c.Get("req-1", now.Add(10*time.Minute))
	assert.False(t, ok)
}

func TestCache_UnknownRequestIDMisses(t *testing.T) {
	c := NewCache(5 * time.Minute)
	_, ok := c.Get("nonexistent", time.Now())
	assert.False(t, ok)
}

func TestCache_SweepRemovesOnlyExpired(t *testing.T) {
	c := NewCache(1 * time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Put("fresh", Result{MDVersion: "f"}, 0, 0, now)
	c.Put("stale", Result{MDVersion: "s"}, 0, 0, now.Add(-2*time.Minute))

	c.Sweep(now)

	_, freshOK := c.Get("fresh", now)
	_, staleOK := c.Get("stale", now)
	assert.True(t, freshOK)
	assert.False(t, staleOK)
}

func TestCache_DefaultTTLAppliedWhenNonPositive(t *testing.T) {
	c := NewCache(0)
	assert.Equal(t, cacheTTLDefault, c.ttl)
}
