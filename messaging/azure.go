package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"example.com/horizon/services/ledger/config"
	"example.com/horizon/services/ledger/domain"
)

// EventPublisher publishes stored events to downstream consumers
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// eventEnvelope is the wire contract consumed by projection, workflow and
// notification subsystems.
type eventEnvelope struct {
	ID            string               `json:"id"`
	AggregateID   string               `json:"aggregate_id"`
	AggregateType string               `json:"aggregate_type"`
	EventType     string               `json:"event_type"`
	Version       int                  `json:"version"`
	Payload       domain.EventData     `json:"payload"`
	Metadata      domain.EventMetadata `json:"metadata"`
	Timestamp     time.Time            `json:"timestamp"`
}

// AzureClient publishes events to Azure Service Bus
type AzureClient struct {
	client *azservicebus.Client
	sender *azservicebus.Sender
}

// NewAzureClient creates a new Azure Service Bus client
func NewAzureClient(cfg config.Config) (*AzureClient, error) {
	client, err := azservicebus.NewClientFromConnectionString(cfg.AzureQueueConnStr, nil)
	if err != nil {
		return nil, err
	}

	sender, err := client.NewSender(cfg.AzureEventsQueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender for queue %s: %w", cfg.AzureEventsQueueName, err)
	}

	return &AzureClient{client: client, sender: sender}, nil
}

// PublishEvent publishes a stored event to the events queue
func (a *AzureClient) PublishEvent(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(eventEnvelope{
		ID:            event.ID,
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.Type,
		Version:       event.Version,
		Payload:       event.Data,
		Metadata:      event.Metadata,
		Timestamp:     event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	contentType := "application/json"
	message := &azservicebus.Message{
		Body:          body,
		MessageID:     &event.ID,
		CorrelationID: &event.Metadata.CorrelationID,
		ContentType:   &contentType,
	}

	return a.sender.SendMessage(ctx, message, nil)
}

// Close closes the sender and the underlying client
func (a *AzureClient) Close(ctx context.Context) error {
	if err := a.sender.Close(ctx); err != nil {
		return err
	}
	return a.client.Close(ctx)
}
