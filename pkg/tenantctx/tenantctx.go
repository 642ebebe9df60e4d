// Package tenantctx carries the active tenant identifier on a context.Context,
// the same pattern the donor codebase uses for org-scoped requests, adapted
// to UUID tenant identifiers.
package tenantctx

import (
	"context"

	"github.com/google/uuid"
)

type keyType string

const tenantIDKey keyType = "tenant_id"

// WithTenant returns a context carrying tenantID.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID returns the tenant id stored on ctx, if any.
func TenantID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantIDKey).(uuid.UUID)
	return id, ok
}
