package domain

import (
	"errors"
	"fmt"
)

// AccountAggregateType is the aggregate type tag for ledger accounts
const AccountAggregateType = "account"

// Account status constants
const (
	AccountStatusOpen   = "OPEN"
	AccountStatusClosed = "CLOSED"
)

var (
	// ErrAccountNotOpen is returned when a command targets a closed or
	// never-opened account
	ErrAccountNotOpen = errors.New("account is not open")

	// ErrAccountAlreadyOpen is returned when opening an account twice
	ErrAccountAlreadyOpen = errors.New("account is already open")

	// ErrInsufficientFunds is returned when a withdrawal exceeds the balance
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Account is the ledger account aggregate. All state mutation goes through
// event application; command methods validate business rules and raise
// events, appliers mutate state deterministically with no I/O.
type Account struct {
	*AggregateBase

	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
	Status   string `json:"status"`
}

// AccountState is the serialized snapshot form of an Account
type AccountState struct {
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
	Status   string `json:"status"`
}

// NewAccount creates a new, never-persisted account aggregate at version 0
func NewAccount() *Account {
	account := &Account{}
	account.AggregateBase = NewAggregateBase(AccountAggregateType, account.applyEvent)
	return account
}

// applyEvent mutates account state for one event variant. The switch is
// exhaustive over the closed EventData set; an unhandled variant is a
// programming error surfaced at replay time.
func (a *Account) applyEvent(data EventData) error {
	switch event := data.(type) {
	case AccountOpenedEvent:
		a.OwnerID = event.OwnerID
		a.Name = event.Name
		a.Currency = event.Currency
		a.Balance = 0
		a.Status = AccountStatusOpen

	case FundsDepositedEvent:
		a.Balance += event.Amount

	case FundsWithdrawnEvent:
		a.Balance -= event.Amount

	case AccountClosedEvent:
		a.Status = AccountStatusClosed

	default:
		return fmt.Errorf("unhandled account event: %T", data)
	}

	return nil
}

// Open opens the account
func (a *Account) Open(ownerID, name, currency string, meta EventMetadata) error {
	if a.Status != "" {
		return ErrAccountAlreadyOpen
	}

	return a.Apply(AccountOpenedEvent{
		AccountID: a.GetID(),
		OwnerID:   ownerID,
		Name:      name,
		Currency:  currency,
	}, meta, false)
}

// Deposit adds funds to the account
func (a *Account) Deposit(amount int64, reference string, meta EventMetadata) error {
	if a.Status != AccountStatusOpen {
		return ErrAccountNotOpen
	}
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}

	return a.Apply(FundsDepositedEvent{
		AccountID: a.GetID(),
		Amount:    amount,
		Reference: reference,
	}, meta, false)
}

// Withdraw removes funds from the account
func (a *Account) Withdraw(amount int64, reference string, meta EventMetadata) error {
	if a.Status != AccountStatusOpen {
		return ErrAccountNotOpen
	}
	if amount <= 0 {
		return fmt.Errorf("withdrawal amount must be positive, got %d", amount)
	}
	if amount > a.Balance {
		return ErrInsufficientFunds
	}

	return a.Apply(FundsWithdrawnEvent{
		AccountID: a.GetID(),
		Amount:    amount,
		Reference: reference,
	}, meta, false)
}

// Close closes the account
func (a *Account) Close(reason string, meta EventMetadata) error {
	if a.Status != AccountStatusOpen {
		return ErrAccountNotOpen
	}

	return a.Apply(AccountClosedEvent{
		AccountID: a.GetID(),
		Reason:    reason,
	}, meta, false)
}

// State returns the snapshot form of the account
func (a *Account) State() AccountState {
	return AccountState{
		OwnerID:  a.OwnerID,
		Name:     a.Name,
		Currency: a.Currency,
		Balance:  a.Balance,
		Status:   a.Status,
	}
}

// Restore replaces the account state with a snapshot taken at the given
// version. Events after that version still need to be replayed.
func (a *Account) Restore(id string, state AccountState, version int) {
	a.SetID(id)
	a.SetVersion(version)
	a.OwnerID = state.OwnerID
	a.Name = state.Name
	a.Currency = state.Currency
	a.Balance = state.Balance
	a.Status = state.Status
}
