package models

import (
	"time"
)

// Snapshot represents the latest materialized state of an aggregate.
// At most one row exists per (tenant_id, aggregate_id); saving a newer
// snapshot overwrites the previous one.
type Snapshot struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TenantID      string    `gorm:"uniqueIndex:idx_snapshots_tenant_aggregate,priority:1" json:"tenant_id"`
	AggregateID   string    `gorm:"uniqueIndex:idx_snapshots_tenant_aggregate,priority:2" json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	Version       int       `json:"version"`
	State         []byte    `json:"state"`
	Timestamp     time.Time `json:"timestamp"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
