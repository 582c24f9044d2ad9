package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"example.com/horizon/services/ledger/tenant"
)

// SessionKey is the session configuration key the database row-filtering
// policies read the tenant identifier from.
const SessionKey = "app.current_tenant"

// ErrNoTenantContext is returned when a connection is requested without a
// tenant bound to the context. Hitting this in production is a
// configuration error; the provider fails closed rather than handing out
// an unscoped connection.
var ErrNoTenantContext = errors.New("no tenant context bound")

// SessionBinder issues the session-scoped command that binds the tenant
// value into a checked-out connection.
type SessionBinder func(tx *gorm.DB, tenantID string) error

// PostgresSessionBinder binds the tenant into the Postgres session so row
// security policies keyed on current_setting(SessionKey) apply.
func PostgresSessionBinder(tx *gorm.DB, tenantID string) error {
	return tx.Exec("SELECT set_config(?, ?, false)", SessionKey, tenantID).Error
}

// TenantConnectionProvider wraps the connection pool and guarantees that
// every handed-out connection carries the caller's tenant in its session
// state before any query runs.
type TenantConnectionProvider struct {
	db     *gorm.DB
	binder SessionBinder
}

// NewTenantConnectionProvider creates a new tenant connection provider
func NewTenantConnectionProvider(db *gorm.DB, binder SessionBinder) *TenantConnectionProvider {
	return &TenantConnectionProvider{db: db, binder: binder}
}

// WithConnection checks out a single physical connection, binds the current
// tenant into its session, and runs fn on it. The bind and every query in
// fn share the same connection for the whole checkout; the pool never sees
// the connection mid-use, so a stale binding cannot leak into another
// tenant's request.
func (p *TenantConnectionProvider) WithConnection(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tenantID, ok := tenant.FromContext(ctx)
	if !ok {
		return ErrNoTenantContext
	}

	return p.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		if err := p.binder(tx, tenantID); err != nil {
			return fmt.Errorf("failed to bind tenant session: %w", err)
		}
		return fn(tx)
	})
}
