package messaging

import (
	"context"

	"github.com/rs/zerolog/log"

	"example.com/horizon/services/ledger/domain"
	"example.com/horizon/services/ledger/eventstore"
)

// EventIndexer projects relayed events into the search index
type EventIndexer interface {
	IndexEvent(ctx context.Context, event domain.Event) error
}

// Relay drains unprocessed stored events to the publisher, in storage
// order. An event is marked processed only after a successful publish, so
// delivery is at-least-once and consumers must dedupe on event id.
type Relay struct {
	store     *eventstore.OutboxStore
	publisher EventPublisher
	indexer   EventIndexer
	batchSize int
}

// NewRelay creates a new outbox relay
func NewRelay(store *eventstore.OutboxStore, publisher EventPublisher, indexer EventIndexer, batchSize int) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		indexer:   indexer,
		batchSize: batchSize,
	}
}

// RunOnce publishes one batch of unprocessed events
func (r *Relay) RunOnce(ctx context.Context) error {
	events, err := r.store.GetUnprocessedEvents(ctx, r.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := r.publisher.PublishEvent(ctx, event); err != nil {
			// Stop the batch; storage order must be preserved and the
			// next tick retries from this event.
			log.Error().Err(err).
				Str("eventID", event.ID).
				Str("eventType", event.Type).
				Msg("Failed to publish event")
			return err
		}

		if r.indexer != nil {
			if err := r.indexer.IndexEvent(ctx, event); err != nil {
				log.Warn().Err(err).Str("eventID", event.ID).Msg("Failed to index event")
			}
		}

		if err := r.store.MarkEventAsProcessed(ctx, event.ID); err != nil {
			return err
		}
	}

	if len(events) > 0 {
		log.Info().Int("count", len(events)).Msg("Relayed events")
	}

	return nil
}
