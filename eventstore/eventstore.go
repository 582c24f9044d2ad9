package eventstore

import (
	"context"
	"fmt"
	"time"

	"example.com/horizon/services/ledger/domain"
)

// ConcurrencyConflict is returned when another writer advanced the
// aggregate past the caller's expected version. It is recoverable: the
// caller reloads, reapplies its command and retries the append.
//
// ActualVersion is fetched with a best-effort query after the failed
// transaction and may be stale under heavy contention; it is diagnostic
// only and carries no correctness guarantee.
type ConcurrencyConflict struct {
	AggregateID     string
	ExpectedVersion int
	ActualVersion   int
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %s: expected version %d, actual version %d",
		e.AggregateID, e.ExpectedVersion, e.ActualVersion)
}

// EventStore is the interface for the append-only event log
type EventStore interface {
	// Append atomically persists the events with versions
	// expectedVersion+1..expectedVersion+len(events) and returns the new
	// version. An empty batch is a no-op returning expectedVersion. A lost
	// version race returns *ConcurrencyConflict; any other persistence
	// error propagates unmodified.
	Append(ctx context.Context, aggregateID string, events []domain.Event, expectedVersion int) (int, error)

	// Load loads all events for an aggregate in ascending version order.
	// A nonexistent aggregate yields an empty list, not an error.
	Load(ctx context.Context, aggregateID string) ([]domain.Event, error)

	// LoadFrom loads events with version >= fromVersion in ascending order
	LoadFrom(ctx context.Context, aggregateID string, fromVersion int) ([]domain.Event, error)
}

// Snapshot is a serialized aggregate state at a specific version
type Snapshot struct {
	TenantID      string    `json:"tenant_id"`
	AggregateID   string    `json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	Version       int       `json:"version"`
	State         []byte    `json:"state"`
	Timestamp     time.Time `json:"timestamp"`
}

// SnapshotStore is the interface for latest-snapshot persistence. One
// snapshot exists per (tenant, aggregate); saving replaces the previous
// one, so rollback to an older snapshot is not supported — full replay
// from version 1 is the only way back.
type SnapshotStore interface {
	// Save upserts the snapshot keyed by (tenant, aggregate)
	Save(ctx context.Context, snapshot Snapshot) error

	// Load returns the latest snapshot for the aggregate, or nil if none
	Load(ctx context.Context, aggregateID string) (*Snapshot, error)
}
