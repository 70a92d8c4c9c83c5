package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/watson-platform/internal/orchestrator"
	"github.com/saaga0h/watson-platform/internal/timeline"
	"github.com/saaga0h/watson-platform/pkg/redis"
)

// CachedSource wraps another history source with a Redis blob cache keyed by
// entity and window. Repeated analyses over the same window, the common case
// when a user iterates on period labels, skip the database entirely.
type CachedSource struct {
	inner  orchestrator.HistorySource
	redis  redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource wraps inner with a cache using the given TTL.
func NewCachedSource(inner orchestrator.HistorySource, client redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSource {
	return &CachedSource{
		inner:  inner,
		redis:  client,
		ttl:    ttl,
		logger: logger.With("component", "history-cache"),
	}
}

// FetchHistory serves each entity from cache when possible and falls back
// to the inner source for the rest. Cache failures degrade to a plain
// fetch; they are logged but never fail the request.
func (s *CachedSource) FetchHistory(ctx context.Context, entityIDs []string, start, end time.Time) (map[string][]timeline.HistoryEntry, error) {
	result := make(map[string][]timeline.HistoryEntry, len(entityIDs))
	var misses []string

	for _, entityID := range entityIDs {
		key := redis.HistoryCacheKey(entityID, start, end)
		raw, err := s.redis.Get(ctx, key)
		if err != nil {
			misses = append(misses, entityID)
			continue
		}

		var entries []timeline.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			s.logger.Warn("Discarding undecodable cache entry", "key", key, "error", err)
			misses = append(misses, entityID)
			continue
		}
		result[entityID] = entries
	}

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := s.inner.FetchHistory(ctx, misses, start, end)
	if err != nil {
		return nil, err
	}

	for entityID, entries := range fetched {
		result[entityID] = entries

		encoded, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("encode history for %s: %w", entityID, err)
		}
		key := redis.HistoryCacheKey(entityID, start, end)
		if err := s.redis.Set(ctx, key, string(encoded), s.ttl); err != nil {
			s.logger.Warn("Failed to cache history", "key", key, "error", err)
		}
	}

	return result, nil
}
