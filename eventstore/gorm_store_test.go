package eventstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/horizon/services/ledger/database"
	"example.com/horizon/services/ledger/domain"
	"example.com/horizon/services/ledger/models"
	"example.com/horizon/services/ledger/tenant"
)

const testTenant = "tenant-a"

// newTestDB opens a per-test in-memory database. TranslateError gives the
// same gorm.ErrDuplicatedKey the production dialect produces, so the
// conflict path under test is the real one.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Event{}, &models.Snapshot{}))
	return db
}

// noopBinder stands in for the session binder: the test dialect has no
// session configuration, and tenant scoping is exercised through the
// provider's fail-closed check and the stores' tenant columns.
func noopBinder(*gorm.DB, string) error { return nil }

func newTestProvider(t *testing.T) (*database.TenantConnectionProvider, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return database.NewTenantConnectionProvider(db, noopBinder), db
}

func tenantCtx(tenantID string) context.Context {
	return tenant.NewContext(context.Background(), tenantID)
}

func depositEvent(tenantID string, amount int64) domain.Event {
	return domain.Event{
		AggregateID:   "acc-1",
		AggregateType: domain.AccountAggregateType,
		Type:          domain.FundsDeposited,
		Timestamp:     time.Now().UTC(),
		Metadata: domain.EventMetadata{
			TenantID:      tenantID,
			UserID:        "user-1",
			CorrelationID: "corr-1",
		},
		Data: domain.FundsDepositedEvent{AccountID: "acc-1", Amount: amount},
	}
}

func TestAppendAssignsSequentialVersions(t *testing.T) {
	provider, _ := newTestProvider(t)
	store := NewGormEventStore(provider)
	ctx := tenantCtx(testTenant)

	version, err := store.Append(ctx, "acc-1", []domain.Event{
		depositEvent(testTenant, 100),
		depositEvent(testTenant, 200),
	}, 0)
	require.NoError(t, err)
	require.Equal(t, 2, version)

	version, err = store.Append(ctx, "acc-1", []domain.Event{depositEvent(testTenant, 300)}, 2)
	require.NoError(t, err)
	require.Equal(t, 3, version)

	events, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, event := range events {
		require.Equal(t, i+1, event.Version)
		require.Equal(t, "acc-1", event.AggregateID)
		require.Equal(t, testTenant, event.Metadata.TenantID)
		require.NotEmpty(t, event.ID)
	}
	require.Equal(t, domain.FundsDepositedEvent{AccountID: "acc-1", Amount: 300}, events[2].Data)
}

func TestAppendConflictOnStaleExpectedVersion(t *testing.T) {
	provider, _ := newTestProvider(t)
	store := NewGormEventStore(provider)
	ctx := tenantCtx(testTenant)

	_, err := store.Append(ctx, "acc-1", []domain.Event{depositEvent(testTenant, 100)}, 0)
	require.NoError(t, err)

	// Second writer raced on the same expected version and must lose
	_, err = store.Append(ctx, "acc-1", []domain.Event{depositEvent(testTenant, 200)}, 0)

	var conflict *ConcurrencyConflict
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "acc-1", conflict.AggregateID)
	require.Equal(t, 0, conflict.ExpectedVersion)
	require.Equal(t, 1, conflict.ActualVersion)
}

func TestAppendConflictRollsBackWholeBatch(t *testing.T) {
	provider, _ := newTestProvider(t)
	store := NewGormEventStore(provider)
	ctx := tenantCtx(testTenant)

	_, err := store.Append(ctx, "acc-1", []domain.Event{
		depositEvent(testTenant, 100),
		depositEvent(testTenant, 200),
	}, 0)
	require.NoError(t, err)

	// Batch starting at a stale version: the first insert collides with
	// version 2 and nothing from the batch may survive, version 3 included.
	_, err = store.Append(ctx, "acc-1", []domain.Event{
		depositEvent(testTenant, 300),
		depositEvent(testTenant, 400),
	}, 1)

	var conflict *ConcurrencyConflict
	require.ErrorAs(t, err, &conflict)

	events, err := store.Load(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestAppendEmptyBatchIsNoOp(t *testing.T) {
	provider, _ := newTestProvider(t)
	store := NewGormEventStore(provider)

	// No tenant context needed either: an empty batch never touches the pool
	version, err := store.Append(context.Background(), "acc-1", nil, 5)
	require.NoError(t, err)
	require.Equal(t, 5, version)
}

func TestLoadNonexistentAggregateIsEmpty(t *testing.T) {
	provider, _ := newTestProvider(t)
	store := NewGormEventStore(provider)

	events, err := store.Load(tenantCtx(testTenant), "no-such-aggregate")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestLoadFromReturnsTailOnly(t *testing.T) {
	provider, _ := newTestProvider(t)
	store := NewGormEventStore(provider)
	ctx := tenantCtx(testTenant)

	_, err := store.Append(ctx, "acc-1", []domain.Event{
		depositEvent(testTenant, 100),
		depositEvent(testTenant, 200),
		depositEvent(testTenant, 300),
		depositEvent(testTenant, 400),
	}, 0)
	require.NoError(t, err)

	events, err := store.LoadFrom(ctx, "acc-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, 3, events[0].Version)
	require.Equal(t, 4, events[1].Version)
}

func TestStoreFailsClosedWithoutTenantContext(t *testing.T) {
	provider, _ := newTestProvider(t)
	store := NewGormEventStore(provider)

	_, err := store.Append(context.Background(), "acc-1", []domain.Event{depositEvent(testTenant, 100)}, 0)
	require.ErrorIs(t, err, database.ErrNoTenantContext)

	_, err = store.Load(context.Background(), "acc-1")
	require.ErrorIs(t, err, database.ErrNoTenantContext)
}

func TestOutboxRelayCycle(t *testing.T) {
	provider, db := newTestProvider(t)
	store := NewGormEventStore(provider)
	outbox := NewOutboxStore(db)
	ctx := tenantCtx(testTenant)

	_, err := store.Append(ctx, "acc-1", []domain.Event{
		depositEvent(testTenant, 100),
		depositEvent(testTenant, 200),
		depositEvent(testTenant, 300),
	}, 0)
	require.NoError(t, err)

	pending, err := outbox.GetUnprocessedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	require.Equal(t, 1, pending[0].Version)

	require.NoError(t, outbox.MarkEventAsProcessed(context.Background(), pending[0].ID))

	pending, err = outbox.GetUnprocessedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, 2, pending[0].Version)
}

func TestOutboxHonorsBatchLimit(t *testing.T) {
	provider, db := newTestProvider(t)
	store := NewGormEventStore(provider)
	outbox := NewOutboxStore(db)

	_, err := store.Append(tenantCtx(testTenant), "acc-1", []domain.Event{
		depositEvent(testTenant, 100),
		depositEvent(testTenant, 200),
		depositEvent(testTenant, 300),
	}, 0)
	require.NoError(t, err)

	pending, err := outbox.GetUnprocessedEvents(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}
