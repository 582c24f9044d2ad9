package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/horizon/services/ledger/cache"
	"example.com/horizon/services/ledger/database"
	"example.com/horizon/services/ledger/domain"
	"example.com/horizon/services/ledger/eventstore"
	"example.com/horizon/services/ledger/tenant"
	"example.com/horizon/services/ledger/utils"
)

// Handler errors
var (
	// ErrAccountNotFound covers both truly missing aggregates and
	// tenant-mismatched loads. The two cases are indistinguishable to the
	// caller on purpose: answering "forbidden" would confirm the account
	// id exists under another tenant.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists is returned when opening an account whose
	// id already has an event stream
	ErrAccountAlreadyExists = errors.New("account already exists")
)

// defaultMaxRetries bounds the reload-reapply-reappend loop on conflicts
const defaultMaxRetries = 3

// AccessAuditor records access-denied decisions for the server-side audit
// trail. The caller's response stays generic; the full detail lands here.
type AccessAuditor interface {
	RecordTenantMismatch(ctx context.Context, aggregateID, expectedTenant string)
}

// Command structs. Open carries no account id: ids are always generated
// server-side. The (aggregate_id, version) uniqueness index is global, so a
// client-chosen id colliding with another tenant's stream would turn the
// create response into an existence oracle for foreign aggregate ids.
type OpenAccountCommand struct {
	OwnerID  string `json:"owner_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
}

type DepositCommand struct {
	AccountID string `json:"account_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference"`
}

type WithdrawCommand struct {
	AccountID string `json:"account_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference"`
}

type CloseAccountCommand struct {
	AccountID string `json:"account_id" validate:"required"`
	Reason    string `json:"reason"`
}

// AccountHandler executes account commands against the event store. It owns
// the reconstruction protocol (snapshot + partial replay + tenant
// validation), the conflict retry loop and the snapshot policy.
type AccountHandler struct {
	store             eventstore.EventStore
	snapshots         eventstore.SnapshotStore
	cache             *cache.SnapshotCache
	auditor           AccessAuditor
	snapshotFrequency int
	maxRetries        int
}

// NewAccountHandler creates a new account command handler
func NewAccountHandler(store eventstore.EventStore, snapshots eventstore.SnapshotStore, snapshotCache *cache.SnapshotCache, snapshotFrequency int) *AccountHandler {
	return &AccountHandler{
		store:             store,
		snapshots:         snapshots,
		cache:             snapshotCache,
		snapshotFrequency: snapshotFrequency,
		maxRetries:        defaultMaxRetries,
	}
}

// SetAuditor attaches an access auditor
func (h *AccountHandler) SetAuditor(auditor AccessAuditor) {
	h.auditor = auditor
}

// OpenAccount creates a new account aggregate
func (h *AccountHandler) OpenAccount(ctx context.Context, cmd OpenAccountCommand, meta domain.EventMetadata) (*domain.Account, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, errors.Wrap(err, "invalid open account command")
	}
	if err := h.guardMetadata(ctx, meta); err != nil {
		return nil, err
	}

	account := domain.NewAccount()

	if err := account.Open(cmd.OwnerID, cmd.Name, cmd.Currency, meta); err != nil {
		return nil, err
	}

	if _, err := h.store.Append(ctx, account.GetID(), account.UncommittedEvents(), 0); err != nil {
		var conflict *eventstore.ConcurrencyConflict
		if errors.As(err, &conflict) {
			return nil, ErrAccountAlreadyExists
		}
		return nil, errors.Wrap(err, "failed to append events")
	}
	account.ClearUncommittedEvents()

	return account, nil
}

// Deposit adds funds to an account
func (h *AccountHandler) Deposit(ctx context.Context, cmd DepositCommand, meta domain.EventMetadata) (*domain.Account, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, errors.Wrap(err, "invalid deposit command")
	}
	if err := h.guardMetadata(ctx, meta); err != nil {
		return nil, err
	}

	return h.withConflictRetry(ctx, cmd.AccountID, func(account *domain.Account) error {
		return account.Deposit(cmd.Amount, cmd.Reference, meta)
	})
}

// Withdraw removes funds from an account
func (h *AccountHandler) Withdraw(ctx context.Context, cmd WithdrawCommand, meta domain.EventMetadata) (*domain.Account, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, errors.Wrap(err, "invalid withdraw command")
	}
	if err := h.guardMetadata(ctx, meta); err != nil {
		return nil, err
	}

	return h.withConflictRetry(ctx, cmd.AccountID, func(account *domain.Account) error {
		return account.Withdraw(cmd.Amount, cmd.Reference, meta)
	})
}

// CloseAccount closes an account
func (h *AccountHandler) CloseAccount(ctx context.Context, cmd CloseAccountCommand, meta domain.EventMetadata) (*domain.Account, error) {
	if err := utils.ValidateStruct(cmd); err != nil {
		return nil, errors.Wrap(err, "invalid close account command")
	}
	if err := h.guardMetadata(ctx, meta); err != nil {
		return nil, err
	}

	return h.withConflictRetry(ctx, cmd.AccountID, func(account *domain.Account) error {
		return account.Close(cmd.Reason, meta)
	})
}

// GetAccount reconstructs the current state of an account
func (h *AccountHandler) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, _, err := h.loadAccount(ctx, accountID)
	return account, err
}

// guardMetadata rejects metadata whose tenant does not match the bound
// tenant context. The two values come from the same validated claim set in
// normal operation; a mismatch means a wiring bug, and writing under the
// wrong tenant is worse than failing the request.
func (h *AccountHandler) guardMetadata(ctx context.Context, meta domain.EventMetadata) error {
	tenantID, ok := tenant.FromContext(ctx)
	if !ok {
		return database.ErrNoTenantContext
	}
	if meta.TenantID != tenantID {
		return errors.New("event metadata tenant does not match bound tenant context")
	}
	return nil
}

// withConflictRetry runs mutate against a freshly loaded aggregate and
// appends the result, retrying on ConcurrencyConflict with a reload. The
// retry loop is bounded; exhausting it surfaces the last conflict.
func (h *AccountHandler) withConflictRetry(ctx context.Context, accountID string, mutate func(account *domain.Account) error) (*domain.Account, error) {
	var lastConflict *eventstore.ConcurrencyConflict

	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		account, snapshotVersion, err := h.loadAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}

		expectedVersion := account.GetVersion()
		if err := mutate(account); err != nil {
			return nil, err
		}

		newVersion, err := h.store.Append(ctx, accountID, account.UncommittedEvents(), expectedVersion)
		if err != nil {
			var conflict *eventstore.ConcurrencyConflict
			if errors.As(err, &conflict) {
				// Expected under contention, not an error condition
				log.Debug().
					Str("accountID", accountID).
					Int("expectedVersion", conflict.ExpectedVersion).
					Int("actualVersion", conflict.ActualVersion).
					Int("attempt", attempt).
					Msg("Concurrency conflict, retrying")
				lastConflict = conflict
				continue
			}
			return nil, errors.Wrap(err, "failed to append events")
		}

		account.ClearUncommittedEvents()
		h.maybeSnapshot(ctx, account, snapshotVersion, newVersion)
		return account, nil
	}

	return nil, errors.Wrap(lastConflict, "giving up after repeated concurrency conflicts")
}

// loadAccount reconstructs an account: restore from the latest snapshot if
// one exists, replay the remaining events, and validate that every loaded
// event belongs to the caller's tenant before acting on any of it.
func (h *AccountHandler) loadAccount(ctx context.Context, accountID string) (*domain.Account, int, error) {
	tenantID, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, 0, database.ErrNoTenantContext
	}

	account := domain.NewAccount()
	account.SetID(accountID)
	snapshotVersion := 0

	snapshot, err := h.cache.Get(ctx, tenantID, accountID)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Str("accountID", accountID).Msg("Snapshot cache lookup failed")
		}
		snapshot, err = h.snapshots.Load(ctx, accountID)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to load snapshot")
		}
	}

	if snapshot != nil {
		var state domain.AccountState
		if err := json.Unmarshal(snapshot.State, &state); err != nil {
			return nil, 0, errors.Wrap(err, "failed to unmarshal snapshot state")
		}
		account.Restore(accountID, state, snapshot.Version)
		snapshotVersion = snapshot.Version
	}

	events, err := h.store.LoadFrom(ctx, accountID, snapshotVersion+1)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to load events")
	}

	if snapshotVersion == 0 && len(events) == 0 {
		return nil, 0, ErrAccountNotFound
	}

	if !tenant.BelongsToTenant(events, tenantID) {
		if h.auditor != nil {
			h.auditor.RecordTenantMismatch(ctx, accountID, tenantID)
		}
		log.Warn().
			Str("accountID", accountID).
			Str("tenantID", tenantID).
			Msg("Loaded events failed tenant validation")
		return nil, 0, ErrAccountNotFound
	}

	for _, event := range events {
		if err := account.Apply(event.Data, event.Metadata, true); err != nil {
			return nil, 0, errors.Wrap(err, "failed to replay event")
		}
	}

	return account, snapshotVersion, nil
}

// maybeSnapshot saves a new snapshot once enough events have accumulated
// since the last one. Snapshotting is an optimization: failures are logged
// and never fail the command that triggered them.
func (h *AccountHandler) maybeSnapshot(ctx context.Context, account *domain.Account, snapshotVersion, newVersion int) {
	if h.snapshotFrequency <= 0 || newVersion-snapshotVersion < h.snapshotFrequency {
		return
	}

	tenantID, ok := tenant.FromContext(ctx)
	if !ok {
		return
	}

	state, err := json.Marshal(account.State())
	if err != nil {
		log.Warn().Err(err).Str("accountID", account.GetID()).Msg("Failed to marshal snapshot state")
		return
	}

	snapshot := eventstore.Snapshot{
		TenantID:      tenantID,
		AggregateID:   account.GetID(),
		AggregateType: account.GetType(),
		Version:       newVersion,
		State:         state,
		Timestamp:     time.Now(),
	}

	if err := h.snapshots.Save(ctx, snapshot); err != nil {
		log.Warn().Err(err).Str("accountID", account.GetID()).Msg("Failed to save snapshot")
		return
	}
	if err := h.cache.Set(ctx, snapshot); err != nil {
		log.Warn().Err(err).Str("accountID", account.GetID()).Msg("Failed to cache snapshot")
	}

	log.Info().
		Str("accountID", account.GetID()).
		Int("version", newVersion).
		Msg("Snapshot saved")
}
