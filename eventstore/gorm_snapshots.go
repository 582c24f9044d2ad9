package eventstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/horizon/services/ledger/database"
	"example.com/horizon/services/ledger/models"
	"example.com/horizon/services/ledger/tenant"
)

// GormSnapshotStore implements SnapshotStore using GORM
type GormSnapshotStore struct {
	db *database.TenantConnectionProvider
}

// NewGormSnapshotStore creates a new GORM snapshot store
func NewGormSnapshotStore(db *database.TenantConnectionProvider) *GormSnapshotStore {
	return &GormSnapshotStore{db: db}
}

// Save upserts the snapshot keyed by (tenant, aggregate)
func (s *GormSnapshotStore) Save(ctx context.Context, snapshot Snapshot) error {
	row := models.Snapshot{
		TenantID:      snapshot.TenantID,
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         snapshot.State,
		Timestamp:     snapshot.Timestamp,
	}

	err := s.db.WithConnection(ctx, func(conn *gorm.DB) error {
		return conn.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "aggregate_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"aggregate_type", "version", "state", "timestamp", "updated_at",
			}),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// Load returns the latest snapshot for the aggregate under the caller's
// tenant, or nil if none exists.
func (s *GormSnapshotStore) Load(ctx context.Context, aggregateID string) (*Snapshot, error) {
	tenantID, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, database.ErrNoTenantContext
	}

	var row models.Snapshot
	err := s.db.WithConnection(ctx, func(conn *gorm.DB) error {
		return conn.
			Where("tenant_id = ? AND aggregate_id = ?", tenantID, aggregateID).
			First(&row).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	return &Snapshot{
		TenantID:      row.TenantID,
		AggregateID:   row.AggregateID,
		AggregateType: row.AggregateType,
		Version:       row.Version,
		State:         row.State,
		Timestamp:     row.Timestamp,
	}, nil
}
