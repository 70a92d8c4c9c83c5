package redis

import (
	"fmt"
	"time"
)

// Key construction helpers for the history cache

// HistoryCacheKey returns the key for a cached entity history range (string value)
// Pattern: history:{entity_id}:{start_unix}:{end_unix}
func HistoryCacheKey(entityID string, start, end time.Time) string {
	return fmt.Sprintf("history:%s:%d:%d", entityID, start.Unix(), end.Unix())
}

// EntityTimelineKey returns the key for an entity's state-change timeline (sorted set)
// Pattern: timeline:{entity_id}
func EntityTimelineKey(entityID string) string {
	return fmt.Sprintf("timeline:%s", entityID)
}
