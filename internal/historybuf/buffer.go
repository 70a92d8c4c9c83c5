package historybuf

import (
	"encoding/binary"
	"time"

	"github.com/saaga0h/watson-platform/internal/timeline"
)

// RecordSize is the fixed byte width of one history record:
// a u32 timestamp in seconds followed by a u32 state id, little-endian.
const RecordSize = 8

const initialCapacity = 512 * RecordSize

// growThreshold triggers a capacity doubling once the write offset passes
// this fraction of the buffer.
const growThreshold = 0.9

// Buffer is a compact append-only store for one entity's state history.
// Timestamps must be appended in non-decreasing order; callers sort first.
type Buffer struct {
	data     []byte
	n        int // bytes written
	states   []string
	stateIDs map[string]uint32
}

// Metadata describes an exported buffer.
type Metadata struct {
	PointCount      int       `json:"point_count"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	StateDictionary []string  `json:"state_dictionary"`
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		data:     make([]byte, initialCapacity),
		stateIDs: make(map[string]uint32),
	}
}

// Len returns the number of records written.
func (b *Buffer) Len() int {
	return b.n / RecordSize
}

// Append writes one record. The state string is interned into the buffer's
// dictionary on first sight.
func (b *Buffer) Append(t time.Time, state string) {
	if float64(b.n+RecordSize) > float64(len(b.data))*growThreshold {
		grown := make([]byte, len(b.data)*2)
		copy(grown, b.data[:b.n])
		b.data = grown
	}

	id, ok := b.stateIDs[state]
	if !ok {
		id = uint32(len(b.states))
		b.stateIDs[state] = id
		b.states = append(b.states, state)
	}

	binary.LittleEndian.PutUint32(b.data[b.n:], uint32(t.Unix()))
	binary.LittleEndian.PutUint32(b.data[b.n+4:], id)
	b.n += RecordSize
}

// BulkLoad sorts the entries and appends them all.
func (b *Buffer) BulkLoad(history []timeline.HistoryEntry) {
	for _, e := range timeline.SortHistory(history) {
		b.Append(e.ChangedAt, e.State)
	}
}

// StateAtOrBefore returns the state of the last record with a timestamp at
// or before t, or false when every record is later.
func (b *Buffer) StateAtOrBefore(t time.Time) (string, bool) {
	target := t.Unix()
	if target < 0 {
		return "", false
	}

	// Binary search over the fixed-stride record array for the first record
	// strictly after the target.
	lo, hi := 0, b.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		ts := binary.LittleEndian.Uint32(b.data[mid*RecordSize:])
		if int64(ts) <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return "", false
	}

	id := binary.LittleEndian.Uint32(b.data[(lo-1)*RecordSize+4:])
	return b.states[id], true
}

// Export returns a view of exactly the written bytes plus metadata. The
// returned slice aliases the buffer and must be treated as read-only; no
// further mutation happens once a buffer has been exported, so the view is
// safe to hand across a concurrency boundary. byteLength / RecordSize is
// the authoritative point count.
func (b *Buffer) Export() ([]byte, Metadata) {
	meta := Metadata{
		PointCount:      b.Len(),
		StateDictionary: b.states,
	}
	if b.n > 0 {
		first := binary.LittleEndian.Uint32(b.data[0:])
		last := binary.LittleEndian.Uint32(b.data[b.n-RecordSize:])
		meta.StartTime = time.Unix(int64(first), 0).UTC()
		meta.EndTime = time.Unix(int64(last), 0).UTC()
	}
	return b.data[:b.n], meta
}
