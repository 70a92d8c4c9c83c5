package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/watson-platform/internal/timeline"
	"github.com/saaga0h/watson-platform/pkg/redis"
)

// TimelineStore keeps a rolling per-entity state-change timeline in Redis
// sorted sets, scored by change time. Agents on the platform record state
// changes as they happen; the analyzer reads them back as a history source
// for recent windows without touching the database.
type TimelineStore struct {
	redis     redis.Client
	retention time.Duration
	logger    *slog.Logger
}

// NewTimelineStore creates a store that prunes entries older than the
// retention window on every record.
func NewTimelineStore(client redis.Client, retention time.Duration, logger *slog.Logger) *TimelineStore {
	return &TimelineStore{
		redis:     client,
		retention: retention,
		logger:    logger.With("component", "timeline-store"),
	}
}

type timelineMember struct {
	State     string    `json:"state"`
	ChangedAt time.Time `json:"changed_at"`
}

// Record appends one state change to the entity's timeline and prunes
// entries that have aged out of the retention window.
func (s *TimelineStore) Record(ctx context.Context, entry timeline.HistoryEntry) error {
	member, err := json.Marshal(timelineMember{State: entry.State, ChangedAt: entry.ChangedAt})
	if err != nil {
		return fmt.Errorf("encode timeline member: %w", err)
	}

	key := redis.EntityTimelineKey(entry.EntityID)
	score := float64(entry.ChangedAt.UnixMilli()) / 1000

	if err := s.redis.ZAdd(ctx, key, score, string(member)); err != nil {
		return fmt.Errorf("record state change for %s: %w", entry.EntityID, err)
	}
	if err := s.redis.Expire(ctx, key, s.retention); err != nil {
		s.logger.Warn("Failed to refresh timeline TTL", "entity", entry.EntityID, "error", err)
	}

	cutoff := time.Now().Add(-s.retention)
	cutoffScore := fmt.Sprintf("%f", float64(cutoff.UnixMilli())/1000)
	if err := s.redis.ZRemRangeByScore(ctx, key, "-inf", cutoffScore); err != nil {
		s.logger.Warn("Failed to prune timeline", "entity", entry.EntityID, "error", err)
	}

	return nil
}

// FetchHistory reads each entity's recorded changes inside [start, end).
// The store implements the same contract as the database-backed source so
// the orchestrator can run against either.
func (s *TimelineStore) FetchHistory(ctx context.Context, entityIDs []string, start, end time.Time) (map[string][]timeline.HistoryEntry, error) {
	result := make(map[string][]timeline.HistoryEntry, len(entityIDs))

	min := float64(start.UnixMilli()) / 1000
	max := float64(end.UnixMilli()) / 1000

	for _, entityID := range entityIDs {
		key := redis.EntityTimelineKey(entityID)
		members, err := s.redis.ZRangeByScoreWithScores(ctx, key, min, max)
		if err != nil {
			if len(entityIDs) == 1 {
				return nil, fmt.Errorf("read timeline for %s: %w", entityID, err)
			}
			s.logger.Warn("Skipping entity after timeline read failure", "entity", entityID, "error", err)
			continue
		}

		entries := make([]timeline.HistoryEntry, 0, len(members))
		for _, m := range members {
			var tm timelineMember
			if err := json.Unmarshal([]byte(m.Member), &tm); err != nil {
				s.logger.Warn("Discarding undecodable timeline member", "entity", entityID, "error", err)
				continue
			}
			entries = append(entries, timeline.HistoryEntry{
				EntityID:  entityID,
				State:     tm.State,
				ChangedAt: tm.ChangedAt,
			})
		}
		result[entityID] = entries
	}

	return result, nil
}

// Size returns the number of recorded changes for an entity.
func (s *TimelineStore) Size(ctx context.Context, entityID string) (int64, error) {
	return s.redis.ZCard(ctx, redis.EntityTimelineKey(entityID))
}
