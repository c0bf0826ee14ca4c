package identifier

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// The service keeps counters in memory only. These contracts let the
// surrounding application persist them; implementations live in
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// CounterStore persists block counters across restarts.
type CounterStore interface {
	// Load returns every stored counter. Blocks never saved are absent.
	Load(ctx context.Context) (Snapshot, error)

	// Save overwrites the stored value of a single block counter.
	Save(ctx context.Context, block Block, value int) error

	// Advance stores value only if it is greater than the stored one, so
	// saves that arrive out of order never move a counter backwards.
	Advance(ctx context.Context, block Block, value int) error
}

// IssueRecord is an audit entry for an identifier handed out by Generate.
type IssueRecord struct {
	ID         string
	Identifier Identifier
	Block      Block
	Year       int
	Sequence   int
	IssuedAt   time.Time
}

// IssueLog records issued identifiers.
type IssueLog interface {
	// Record appends an issued identifier.
	Record(ctx context.Context, rec IssueRecord) error
}

// MemoryStore is a CounterStore kept in process memory. It is used when no
// database is configured and in tests.
type MemoryStore struct {
	counters *Counters
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: NewCounters()}
}

// Load implements CounterStore.
func (m *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	return m.counters.Snapshot(), nil
}

// Save implements CounterStore.
func (m *MemoryStore) Save(_ context.Context, block Block, value int) error {
	m.counters.set(block, value)
	return nil
}

// Advance implements CounterStore.
func (m *MemoryStore) Advance(_ context.Context, block Block, value int) error {
	m.counters.mu.Lock()
	defer m.counters.mu.Unlock()
	if value > m.counters.values[block] {
		m.counters.values[block] = value
	}
	return nil
}
