// Package correlation carries a lightweight, lexicographically sortable
// request-scoped id through logs, distinct from the UUID correlation_id the
// facade stamps on domain events. Grounded in the donor's
// pkg/telemetry/correlation package, which layers the same idea over ULIDs.
package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type keyType string

const correlationKey keyType = "log_correlation_id"

// Extract returns the correlation id on ctx, or "" if absent.
func Extract(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationKey).(string); ok {
		return v
	}
	return ""
}

// Inject sets id on ctx.
func Inject(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey, id)
}

// Ensure guarantees a correlation id is present, generating a ULID if not.
func Ensure(ctx context.Context) (context.Context, string) {
	id := Extract(ctx)
	if id == "" {
		id = ulid.Make().String()
	}
	return Inject(ctx, id), id
}
