package cache

import (
	"fmt"
	"time"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service caches rendered per-user insights between analysis runs
type Service interface {
	GetInsights(userID string) ([]string, bool)
	SetInsights(userID string, insights []string)
	Invalidate(userID string)
	Clear()
}

type entry struct {
	insights  []string
	createdAt time.Time
}

// Cache implements caching service
type Cache struct {
	enabled bool
	cache   *cache.Cache
	maxSize int
	metrics *middleware.Metrics
	logger  *logrus.Logger
}

// NewCache creates a new cache service
func NewCache(cfg *config.CacheConfig, metrics *middleware.Metrics, logger *logrus.Logger) *Cache {
	if !cfg.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.TTL, cfg.TTL*2),
		maxSize: cfg.MaxSize,
		metrics: metrics,
		logger:  logger,
	}
}

// GetInsights retrieves cached insights
func (c *Cache) GetInsights(userID string) ([]string, bool) {
	if !c.enabled {
		return nil, false
	}

	if val, found := c.cache.Get(insightKey(userID)); found {
		e := val.(*entry)
		c.metrics.RecordCacheHit()
		c.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"age":     time.Since(e.createdAt),
		}).Debug("Cache hit")
		return append([]string(nil), e.insights...), true
	}

	c.metrics.RecordCacheMiss()
	return nil, false
}

// SetInsights stores insights in cache
func (c *Cache) SetInsights(userID string, insights []string) {
	if !c.enabled {
		return
	}

	// Check cache size
	if c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing old entries")
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.cache.Flush()
		}
	}

	c.cache.SetDefault(insightKey(userID), &entry{
		insights:  append([]string(nil), insights...),
		createdAt: time.Now(),
	})
}

// Invalidate drops a user's cached insights
func (c *Cache) Invalidate(userID string) {
	if !c.enabled {
		return
	}
	c.cache.Delete(insightKey(userID))
}

// Clear removes all cached entries
func (c *Cache) Clear() {
	if !c.enabled {
		return
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
}

func insightKey(userID string) string {
	return fmt.Sprintf("insights:%s", userID)
}
