package cache

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// LayeredCache fronts a disk cache with a memory cache
type LayeredCache struct {
	memory Cache
	disk   Cache
	logger zerolog.Logger
}

// NewLayeredCache creates a memory-over-disk cache
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(memoryTTL, cleanupInterval(memoryTTL)),
		disk:   NewDiskCache(diskDir, diskTTL),
		logger: zerolog.Nop(),
	}
}

// WithLogger sets the logger used for failed promotions
func (c *LayeredCache) WithLogger(logger zerolog.Logger) *LayeredCache {
	c.logger = logger.With().Str("component", "cache").Logger()
	return c
}

// Get checks memory first; disk hits are promoted with the memory default TTL
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}

	val, found := c.disk.Get(key)
	if !found {
		return nil, false
	}
	if err := c.memory.Set(key, val, 0); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Cache promotion failed")
	}
	return val, true
}

// Set writes through to both layers; the memory layer uses its own default TTL
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.disk.Set(key, value, ttl); err != nil {
		return err
	}
	return c.memory.Set(key, value, 0)
}

func (c *LayeredCache) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

func (c *LayeredCache) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}
