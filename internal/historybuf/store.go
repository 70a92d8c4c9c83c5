package historybuf

import (
	"time"

	"github.com/saaga0h/watson-platform/internal/timeline"
)

// Store holds one Buffer per entity.
type Store struct {
	buffers map[string]*Buffer
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{buffers: make(map[string]*Buffer)}
}

// Load replaces the entity's buffer with the given history.
func (s *Store) Load(entityID string, history []timeline.HistoryEntry) {
	b := NewBuffer()
	b.BulkLoad(history)
	s.buffers[entityID] = b
}

// StateAtOrBefore looks up the entity's state at or before t. Unknown
// entities report no state, same as an entity with only later records.
func (s *Store) StateAtOrBefore(entityID string, t time.Time) (string, bool) {
	b, ok := s.buffers[entityID]
	if !ok {
		return "", false
	}
	return b.StateAtOrBefore(t)
}

// Entities lists the entity ids with a loaded buffer.
func (s *Store) Entities() []string {
	ids := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	return ids
}

// Export returns the trimmed bytes and metadata for one entity.
func (s *Store) Export(entityID string) ([]byte, Metadata, bool) {
	b, ok := s.buffers[entityID]
	if !ok {
		return nil, Metadata{}, false
	}
	data, meta := b.Export()
	return data, meta, true
}
