package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/models"
)

const (
	activeGeofenceKey = "geoproof:geofence:active"
	// activeGeofenceGenKey names the live generation; entries are stored
	// under activeGeofenceKey + ":" + generation.
	activeGeofenceGenKey = "geoproof:geofence:active:gen"
	noActiveGeofence     = "none"
)

// GeofenceLoader reads the active geofence from the database; nil, nil means none.
type GeofenceLoader func(ctx context.Context) (*models.Geofence, error)

// ActiveGeofenceCache keeps the single active geofence in the KV store so
// check-ins do not hit Postgres every time. Any geofence write must call
// Invalidate once it has committed.
//
// Invalidate moves to a new generation instead of deleting the entry, so a
// Get that loaded the old row before the write committed can only fill the
// old generation, which nobody reads again.
type ActiveGeofenceCache struct {
	kv     KVStore
	load   GeofenceLoader
	ttl    time.Duration
	logger *zap.Logger
}

func NewActiveGeofenceCache(kv KVStore, load GeofenceLoader, ttl time.Duration, logger *zap.Logger) *ActiveGeofenceCache {
	return &ActiveGeofenceCache{kv: kv, load: load, ttl: ttl, logger: logger}
}

func (c *ActiveGeofenceCache) Get(ctx context.Context) (*models.Geofence, error) {
	gen, err := c.kv.Get(ctx, activeGeofenceGenKey)
	switch {
	case err == nil:
	case errors.Is(err, ErrCacheMiss):
		gen = "0"
	default:
		c.logger.Warn("geofence cache read failed, falling back to database", zap.Error(err))
		return c.loadActive(ctx)
	}
	key := activeGeofenceKey + ":" + gen

	raw, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		if raw == noActiveGeofence {
			return nil, nil
		}
		var g models.Geofence
		if err := json.Unmarshal([]byte(raw), &g); err == nil {
			return &g, nil
		}
		c.logger.Warn("discarding corrupt geofence cache entry", zap.String("key", key))
	case errors.Is(err, ErrCacheMiss):
	default:
		c.logger.Warn("geofence cache read failed, falling back to database", zap.Error(err))
	}

	g, err := c.loadActive(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, g)
	return g, nil
}

func (c *ActiveGeofenceCache) loadActive(ctx context.Context) (*models.Geofence, error) {
	g, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active geofence: %w", err)
	}
	return g, nil
}

func (c *ActiveGeofenceCache) store(ctx context.Context, key string, g *models.Geofence) {
	value := noActiveGeofence
	if g != nil {
		b, err := json.Marshal(g)
		if err != nil {
			c.logger.Warn("encode geofence for cache", zap.Error(err))
			return
		}
		value = string(b)
	}
	if err := c.kv.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("geofence cache write failed", zap.Error(err))
	}
}

// Invalidate starts a new generation; entries of older ones expire by TTL.
func (c *ActiveGeofenceCache) Invalidate(ctx context.Context) {
	if err := c.kv.Set(ctx, activeGeofenceGenKey, uuid.NewString(), 0); err != nil {
		c.logger.Warn("geofence cache invalidate failed", zap.Error(err))
	}
}
