package messaging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/horizon/services/ledger/database"
	"example.com/horizon/services/ledger/domain"
	"example.com/horizon/services/ledger/eventstore"
	"example.com/horizon/services/ledger/models"
	"example.com/horizon/services/ledger/tenant"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishEvent(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockIndexer struct {
	mock.Mock
}

func (m *mockIndexer) IndexEvent(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func newRelayOutbox(t *testing.T, eventCount int) *eventstore.OutboxStore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Event{}))

	provider := database.NewTenantConnectionProvider(db, func(*gorm.DB, string) error { return nil })
	store := eventstore.NewGormEventStore(provider)

	events := make([]domain.Event, 0, eventCount)
	for i := 0; i < eventCount; i++ {
		events = append(events, domain.Event{
			AggregateID:   "acc-1",
			AggregateType: domain.AccountAggregateType,
			Type:          domain.FundsDeposited,
			Timestamp:     time.Now().UTC(),
			Metadata:      domain.EventMetadata{TenantID: "tenant-a", UserID: "user-1"},
			Data:          domain.FundsDepositedEvent{AccountID: "acc-1", Amount: int64(i + 1)},
		})
	}

	ctx := tenant.NewContext(context.Background(), "tenant-a")
	_, err = store.Append(ctx, "acc-1", events, 0)
	require.NoError(t, err)

	return eventstore.NewOutboxStore(db)
}

func TestRelayPublishesAndMarksProcessed(t *testing.T) {
	outbox := newRelayOutbox(t, 3)

	publisher := &mockPublisher{}
	publisher.On("PublishEvent", mock.Anything, mock.Anything).Return(nil).Times(3)

	indexer := &mockIndexer{}
	indexer.On("IndexEvent", mock.Anything, mock.Anything).Return(nil).Times(3)

	relay := NewRelay(outbox, publisher, indexer, 10)
	require.NoError(t, relay.RunOnce(context.Background()))

	publisher.AssertExpectations(t)
	indexer.AssertExpectations(t)

	// Everything processed: the next tick has nothing to do
	pending, err := outbox.GetUnprocessedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestRelayStopsBatchOnPublishFailure(t *testing.T) {
	outbox := newRelayOutbox(t, 3)

	publisher := &mockPublisher{}
	publisher.On("PublishEvent", mock.Anything, mock.Anything).Return(nil).Once()
	publisher.On("PublishEvent", mock.Anything, mock.Anything).Return(fmt.Errorf("broker unavailable")).Once()

	relay := NewRelay(outbox, publisher, nil, 10)
	require.Error(t, relay.RunOnce(context.Background()))
	publisher.AssertExpectations(t)

	// Only the first event was marked; the failed one and everything after
	// it stay queued for the next tick in storage order.
	pending, err := outbox.GetUnprocessedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, 2, pending[0].Version)
}

func TestRelayIndexFailureDoesNotBlockProcessing(t *testing.T) {
	outbox := newRelayOutbox(t, 2)

	publisher := &mockPublisher{}
	publisher.On("PublishEvent", mock.Anything, mock.Anything).Return(nil).Times(2)

	indexer := &mockIndexer{}
	indexer.On("IndexEvent", mock.Anything, mock.Anything).Return(fmt.Errorf("index unavailable")).Times(2)

	relay := NewRelay(outbox, publisher, indexer, 10)
	require.NoError(t, relay.RunOnce(context.Background()))

	pending, err := outbox.GetUnprocessedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestRelayRespectsBatchSize(t *testing.T) {
	outbox := newRelayOutbox(t, 5)

	publisher := &mockPublisher{}
	publisher.On("PublishEvent", mock.Anything, mock.Anything).Return(nil).Times(2)

	relay := NewRelay(outbox, publisher, nil, 2)
	require.NoError(t, relay.RunOnce(context.Background()))
	publisher.AssertExpectations(t)

	pending, err := outbox.GetUnprocessedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
}
