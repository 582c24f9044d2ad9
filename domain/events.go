package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType constants
const (
	AccountOpened  = "V1_ACCOUNT_OPENED"
	FundsDeposited = "V1_FUNDS_DEPOSITED"
	FundsWithdrawn = "V1_FUNDS_WITHDRAWN"
	AccountClosed  = "V1_ACCOUNT_CLOSED"
)

// EventMetadata is attached to every event at creation time and never
// mutated afterwards. The tenant identifier is the authoritative owner
// of the event; stores duplicate it into an indexed column.
type EventMetadata struct {
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// Event represents a domain event. In its stored form the ID, Version and
// Timestamp fields are assigned by the event store.
type Event struct {
	ID            string        `json:"id"`
	AggregateID   string        `json:"aggregate_id"`
	AggregateType string        `json:"aggregate_type"`
	Type          string        `json:"type"`
	Version       int           `json:"version"`
	Timestamp     time.Time     `json:"timestamp"`
	Metadata      EventMetadata `json:"metadata"`
	Data          EventData     `json:"data"`
}

// EventData is the closed set of event payloads. Each variant carries its
// own type tag so dispatch is exhaustive at compile time; a new event type
// is a new variant plus a new case in UnmarshalEventData and the aggregate
// appliers.
type EventData interface {
	EventType() string
	isEventData()
}

// AccountOpenedEvent represents an account opened event
type AccountOpenedEvent struct {
	AccountID string `json:"account_id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
}

func (AccountOpenedEvent) EventType() string { return AccountOpened }
func (AccountOpenedEvent) isEventData()      {}

// FundsDepositedEvent represents a funds deposited event
type FundsDepositedEvent struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

func (FundsDepositedEvent) EventType() string { return FundsDeposited }
func (FundsDepositedEvent) isEventData()      {}

// FundsWithdrawnEvent represents a funds withdrawn event
type FundsWithdrawnEvent struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

func (FundsWithdrawnEvent) EventType() string { return FundsWithdrawn }
func (FundsWithdrawnEvent) isEventData()      {}

// AccountClosedEvent represents an account closed event
type AccountClosedEvent struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

func (AccountClosedEvent) EventType() string { return AccountClosed }
func (AccountClosedEvent) isEventData()      {}

// UnmarshalEventData decodes a serialized event payload into its concrete
// variant based on the stored event type tag.
func UnmarshalEventData(eventType string, data []byte) (EventData, error) {
	switch eventType {
	case AccountOpened:
		var payload AccountOpenedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
		return payload, nil

	case FundsDeposited:
		var payload FundsDepositedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
		return payload, nil

	case FundsWithdrawn:
		var payload FundsWithdrawnEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
		return payload, nil

	case AccountClosed:
		var payload AccountClosedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}
