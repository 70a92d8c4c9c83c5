package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/watson-platform/internal/timeline"
	"github.com/saaga0h/watson-platform/pkg/postgres"
)

// PostgresSource reads state-change history from the platform's recorder
// tables.
type PostgresSource struct {
	db     postgres.Client
	logger *slog.Logger
}

// NewPostgresSource creates a source backed by the given database client.
func NewPostgresSource(db postgres.Client, logger *slog.Logger) *PostgresSource {
	return &PostgresSource{
		db:     db,
		logger: logger.With("component", "history"),
	}
}

// FetchHistory returns each entity's state changes inside [start, end),
// plus the one change immediately before start so callers know the state in
// effect when the window opens. When more than one entity is requested, a
// failing entity is logged and skipped; a single-entity request propagates
// the failure.
func (s *PostgresSource) FetchHistory(ctx context.Context, entityIDs []string, start, end time.Time) (map[string][]timeline.HistoryEntry, error) {
	result := make(map[string][]timeline.HistoryEntry, len(entityIDs))

	for _, entityID := range entityIDs {
		entries, err := s.fetchEntity(ctx, entityID, start, end)
		if err != nil {
			if len(entityIDs) == 1 {
				return nil, err
			}
			s.logger.Warn("Skipping entity after fetch failure", "entity", entityID, "error", err)
			continue
		}
		result[entityID] = entries
	}

	return result, nil
}

func (s *PostgresSource) fetchEntity(ctx context.Context, entityID string, start, end time.Time) ([]timeline.HistoryEntry, error) {
	var entries []timeline.HistoryEntry

	// The state in effect at the window open is the last change before it.
	var priorState string
	var priorChanged time.Time
	err := s.db.QueryRow(ctx, `
		SELECT state, changed_at
		FROM state_changes
		WHERE entity_id = $1 AND changed_at < $2
		ORDER BY changed_at DESC
		LIMIT 1`, entityID, start).Scan(&priorState, &priorChanged)
	switch {
	case err == nil:
		entries = append(entries, timeline.HistoryEntry{
			EntityID:  entityID,
			State:     priorState,
			ChangedAt: priorChanged,
		})
	case errors.Is(err, sql.ErrNoRows):
		// No history before the window; the entity simply has no state yet.
	default:
		return nil, fmt.Errorf("query prior state for %s: %w", entityID, err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT state, changed_at
		FROM state_changes
		WHERE entity_id = $1 AND changed_at >= $2 AND changed_at < $3
		ORDER BY changed_at`, entityID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query state changes for %s: %w", entityID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e timeline.HistoryEntry
		if err := rows.Scan(&e.State, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan state change for %s: %w", entityID, err)
		}
		e.EntityID = entityID
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state changes for %s: %w", entityID, err)
	}

	return entries, nil
}
