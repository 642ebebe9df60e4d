// Package rls applies Postgres row-level security context ahead of a
// transaction's statements, so every query is implicitly scoped to one
// tenant even if a call site forgets an explicit WHERE clause.
package rls

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WithTenant sets the session-local GUC read by each table's RLS policy.
// Must be called inside the transaction it is meant to scope: SET LOCAL
// only lasts for the current transaction.
func WithTenant(tx *gorm.DB, tenantID uuid.UUID) error {
	return tx.Exec("SET LOCAL app.current_tenant_id = ?", tenantID.String()).Error
}
