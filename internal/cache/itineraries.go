package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/RaikyD/trip-orders-service/internal/domain"
	"github.com/RaikyD/trip-orders-service/internal/logger"
	"github.com/RaikyD/trip-orders-service/internal/repository"
)

// CachedItineraries serves catalog lookups from the cache and falls back to the
// wrapped repository. Cache failures never fail a lookup.
type CachedItineraries struct {
	next  repository.ItineraryRepo
	cache Cache
	ttl   time.Duration
}

func NewCachedItineraries(next repository.ItineraryRepo, c Cache, ttl time.Duration) *CachedItineraries {
	return &CachedItineraries{next: next, cache: c, ttl: ttl}
}

func (c *CachedItineraries) GetItinerary(ctx context.Context, id uuid.UUID) (*domain.Itinerary, error) {
	key := c.cache.GenerateKey("itinerary", id.String())

	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("itinerary cache get failed", "key", key, "err", err)
	}
	if raw != "" {
		var it domain.Itinerary
		if err := json.Unmarshal([]byte(raw), &it); err == nil {
			return &it, nil
		}
		logger.Warn("itinerary cache entry corrupt; refetching", "key", key)
	}

	it, err := c.next.GetItinerary(ctx, id)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(it)
	if err != nil {
		return it, nil
	}
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		logger.Warn("itinerary cache set failed", "key", key, "err", err)
	}
	return it, nil
}
