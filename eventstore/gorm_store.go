package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/horizon/services/ledger/database"
	"example.com/horizon/services/ledger/domain"
	"example.com/horizon/services/ledger/models"
)

// GormEventStore implements EventStore using GORM. Every operation goes
// through the tenant connection provider, so no query runs without a
// tenant-bound database session.
type GormEventStore struct {
	db *database.TenantConnectionProvider
}

// NewGormEventStore creates a new GORM event store
func NewGormEventStore(db *database.TenantConnectionProvider) *GormEventStore {
	return &GormEventStore{db: db}
}

// Append atomically persists the events under optimistic locking
func (s *GormEventStore) Append(ctx context.Context, aggregateID string, events []domain.Event, expectedVersion int) (int, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	err := s.db.WithConnection(ctx, func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			for i, event := range events {
				data, err := json.Marshal(event.Data)
				if err != nil {
					return fmt.Errorf("failed to marshal event data: %w", err)
				}

				version := expectedVersion + i + 1
				dbEvent := models.Event{
					EventID:       uuid.New().String(),
					AggregateID:   aggregateID,
					AggregateType: event.AggregateType,
					EventType:     event.Type,
					TenantID:      event.Metadata.TenantID,
					UserID:        event.Metadata.UserID,
					CorrelationID: event.Metadata.CorrelationID,
					Data:          data,
					Version:       version,
					Timestamp:     event.Timestamp,
					Processed:     false,
				}

				if err := tx.Create(&dbEvent).Error; err != nil {
					return err
				}

				log.Info().
					Str("aggregateID", aggregateID).
					Str("eventType", event.Type).
					Int("version", version).
					Msg("Event saved")
			}
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, &ConcurrencyConflict{
				AggregateID:     aggregateID,
				ExpectedVersion: expectedVersion,
				ActualVersion:   s.currentVersion(ctx, aggregateID),
			}
		}
		return 0, fmt.Errorf("failed to append events: %w", err)
	}

	return expectedVersion + len(events), nil
}

// Load loads all events for an aggregate
func (s *GormEventStore) Load(ctx context.Context, aggregateID string) ([]domain.Event, error) {
	return s.LoadFrom(ctx, aggregateID, 1)
}

// LoadFrom loads events with version >= fromVersion in ascending order
func (s *GormEventStore) LoadFrom(ctx context.Context, aggregateID string, fromVersion int) ([]domain.Event, error) {
	var dbEvents []models.Event
	err := s.db.WithConnection(ctx, func(conn *gorm.DB) error {
		return conn.
			Where("aggregate_id = ? AND version >= ?", aggregateID, fromVersion).
			Order("version ASC").
			Find(&dbEvents).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	events := make([]domain.Event, 0, len(dbEvents))
	for _, dbEvent := range dbEvents {
		event, err := toDomainEvent(dbEvent)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

// currentVersion fetches the aggregate's latest version outside the failed
// transaction. Best effort: under contention the value may already be
// stale by the time the caller sees it.
func (s *GormEventStore) currentVersion(ctx context.Context, aggregateID string) int {
	var version int
	err := s.db.WithConnection(ctx, func(conn *gorm.DB) error {
		return conn.Model(&models.Event{}).
			Where("aggregate_id = ?", aggregateID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&version).Error
	})
	if err != nil {
		log.Warn().Err(err).Str("aggregateID", aggregateID).Msg("Failed to fetch current version after conflict")
		return 0
	}
	return version
}

func toDomainEvent(dbEvent models.Event) (domain.Event, error) {
	data, err := domain.UnmarshalEventData(dbEvent.EventType, dbEvent.Data)
	if err != nil {
		return domain.Event{}, err
	}

	return domain.Event{
		ID:            dbEvent.EventID,
		AggregateID:   dbEvent.AggregateID,
		AggregateType: dbEvent.AggregateType,
		Type:          dbEvent.EventType,
		Version:       dbEvent.Version,
		Timestamp:     dbEvent.Timestamp,
		Metadata: domain.EventMetadata{
			TenantID:      dbEvent.TenantID,
			UserID:        dbEvent.UserID,
			CorrelationID: dbEvent.CorrelationID,
			Timestamp:     dbEvent.Timestamp,
		},
		Data: data,
	}, nil
}
