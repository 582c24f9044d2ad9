package eventstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"example.com/horizon/services/ledger/domain"
	"example.com/horizon/services/ledger/models"
)

// OutboxStore reads stored events across all tenants for relaying to
// downstream consumers. It runs on a maintenance connection under a
// database role exempt from row-filtering policies, so it deliberately
// bypasses the tenant connection provider: the relay is the only component
// allowed to see mixed-tenant rows, and it only forwards them.
type OutboxStore struct {
	db *gorm.DB
}

// NewOutboxStore creates a new outbox store
func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// GetUnprocessedEvents gets stored events not yet relayed, oldest first
func (s *OutboxStore) GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	var dbEvents []models.Event
	if err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("id ASC").
		Limit(limit).
		Find(&dbEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to get unprocessed events: %w", err)
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

// MarkEventAsProcessed marks an event as relayed
func (s *OutboxStore) MarkEventAsProcessed(ctx context.Context, eventID string) error {
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{"processed": true, "updated_at": time.Now()}).
		Error; err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	return nil
}
