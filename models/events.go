package models

import (
	"time"
)

// Event represents a stored domain event in the database.
//
// The composite unique index on (aggregate_id, version) is the write-path
// concurrency control point: concurrent writers race on it and exactly one
// wins per version number. The tenant column is duplicated from the event
// metadata so row-filtering policies and tenant-scoped indexes apply.
type Event struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	EventID       string    `gorm:"uniqueIndex" json:"event_id"`
	AggregateID   string    `gorm:"uniqueIndex:idx_events_aggregate_version,priority:1" json:"aggregate_id"`
	Version       int       `gorm:"uniqueIndex:idx_events_aggregate_version,priority:2" json:"version"`
	AggregateType string    `json:"aggregate_type"`
	EventType     string    `json:"event_type"`
	TenantID      string    `gorm:"index" json:"tenant_id"`
	UserID        string    `json:"user_id"`
	CorrelationID string    `json:"correlation_id"`
	Data          []byte    `json:"data"`
	Timestamp     time.Time `json:"timestamp"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Processed     bool      `gorm:"index" json:"processed"`
}
