package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(maxSize int) *Cache {
	return NewCache(&config.CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: maxSize}, nil, logger.Discard())
}

func TestInsightsRoundTrip(t *testing.T) {
	c := newTestCache(10)

	_, ok := c.GetInsights("u1")
	assert.False(t, ok)

	c.SetInsights("u1", []string{"Revenue Patterns: revenue is increasing"})
	got, ok := c.GetInsights("u1")
	require.True(t, ok)
	assert.Equal(t, []string{"Revenue Patterns: revenue is increasing"}, got)

	got[0] = "changed"
	again, _ := c.GetInsights("u1")
	assert.Equal(t, "Revenue Patterns: revenue is increasing", again[0])
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(10)
	c.SetInsights("u1", []string{"a"})
	c.SetInsights("u2", []string{"b"})

	c.Invalidate("u1")

	_, ok := c.GetInsights("u1")
	assert.False(t, ok)
	_, ok = c.GetInsights("u2")
	assert.True(t, ok)

	c.Clear()
	_, ok = c.GetInsights("u2")
	assert.False(t, ok)
}

func TestCacheRespectsMaxSize(t *testing.T) {
	c := newTestCache(3)
	for i := 0; i < 10; i++ {
		c.SetInsights(fmt.Sprintf("u%d", i), []string{"x"})
		assert.LessOrEqual(t, c.cache.ItemCount(), 3)
	}
	_, ok := c.GetInsights("u9")
	assert.True(t, ok)
}

func TestDisabledCache(t *testing.T) {
	c := NewCache(&config.CacheConfig{Enabled: false}, nil, logger.Discard())

	c.SetInsights("u1", []string{"a"})
	_, ok := c.GetInsights("u1")
	assert.False(t, ok)
	c.Invalidate("u1")
	c.Clear()
}
