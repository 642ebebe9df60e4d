package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the Domain Event Store's contract (spec §4.7).
type Service interface {
	// Append persists one event within tx, idempotent by event_id. isNew is
	// false if the event_id already existed.
	Append(ctx context.Context, tx *gorm.DB, event NewEvent) (isNew bool, err error)

	// AppendBatch persists all events within tx, all-or-nothing with the
	// surrounding transaction.
	AppendBatch(ctx context.Context, tx *gorm.DB, events []NewEvent) error

	GetByID(ctx context.Context, eventID uuid.UUID) (*DomainEvent, error)

	GetByCorrelation(ctx context.Context, tenantID uuid.UUID, correlationID uuid.UUID) ([]DomainEvent, error)

	// GetByEntity queries by a JSON payload key "{entityType}_id" == entityID.
	GetByEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]DomainEvent, error)

	// Replay returns events in ascending (timestamp, event_id) order.
	Replay(ctx context.Context, filter ReplayFilter) ([]DomainEvent, error)

	Count(ctx context.Context, filter ReplayFilter) (int64, error)
}
