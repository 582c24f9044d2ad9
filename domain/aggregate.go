package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// AggregateBase provides common aggregate functionality: it tracks the
// version counter and accumulates uncommitted events between loads and
// persists. A brand-new aggregate starts at version 0; the version always
// equals the number of events ever applied, replayed or new.
type AggregateBase struct {
	id            string
	aggregateType string
	version       int
	uncommitted   []Event
	applier       func(data EventData) error
}

// Aggregate is the interface for all aggregates
type Aggregate interface {
	GetID() string
	GetType() string
	GetVersion() int
	UncommittedEvents() []Event
	ClearUncommittedEvents()
	Apply(data EventData, meta EventMetadata, replay bool) error
}

// NewAggregateBase creates a new aggregate base
func NewAggregateBase(aggregateType string, applier func(EventData) error) *AggregateBase {
	return &AggregateBase{
		id:            uuid.New().String(),
		aggregateType: aggregateType,
		version:       0,
		uncommitted:   []Event{},
		applier:       applier,
	}
}

// GetID returns the aggregate ID
func (a *AggregateBase) GetID() string {
	return a.id
}

// SetID sets the aggregate ID
func (a *AggregateBase) SetID(id string) {
	a.id = id
}

// GetType returns the aggregate type
func (a *AggregateBase) GetType() string {
	return a.aggregateType
}

// GetVersion returns the aggregate version
func (a *AggregateBase) GetVersion() int {
	return a.version
}

// SetVersion sets the aggregate version. Used when restoring state from a
// snapshot, where the replayed history is shortcut.
func (a *AggregateBase) SetVersion(version int) {
	a.version = version
}

// UncommittedEvents returns the events applied since the last persist
func (a *AggregateBase) UncommittedEvents() []Event {
	return a.uncommitted
}

// ClearUncommittedEvents clears the uncommitted events. Callers must invoke
// this after a successful append or the same events get persisted twice on
// the next command.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.uncommitted = []Event{}
}

// Apply runs the aggregate's event applier and increments the version.
// When replay is false the event is also recorded as uncommitted, stamped
// with the supplied metadata; during replay the stored event already exists
// and only the in-memory state moves forward.
func (a *AggregateBase) Apply(data EventData, meta EventMetadata, replay bool) error {
	if a.applier == nil {
		return fmt.Errorf("applier is not set")
	}

	if err := a.applier(data); err != nil {
		return fmt.Errorf("failed to apply event: %w", err)
	}

	a.version++

	if !replay {
		a.uncommitted = append(a.uncommitted, Event{
			AggregateID:   a.id,
			AggregateType: a.aggregateType,
			Type:          data.EventType(),
			Version:       a.version,
			Timestamp:     meta.Timestamp,
			Metadata:      meta,
			Data:          data,
		})
	}

	return nil
}
