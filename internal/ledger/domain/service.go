package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"gorm.io/gorm"
)

// Service is the Ledger's contract (spec §4.1). Every write happens within
// the caller's transaction: callers pass tx (a *gorm.DB already inside a
// Transaction callback) so the facade can compose gate/ledger/event writes
// atomically per spec §5.
type Service interface {
	PostEntry(ctx context.Context, tx *gorm.DB, in PostEntryInput) (PostResult, error)
	ReverseEntry(ctx context.Context, tx *gorm.DB, originalEntryID uuid.UUID, newIdempotencyKey, reason string) (PostResult, error)
	GetBalance(ctx context.Context, tx *gorm.DB, tenantID, legalEntityID, accountID uuid.UUID) (Balance, error)
	CreateReservation(ctx context.Context, tx *gorm.DB, in CreateReservationInput) (uuid.UUID, error)
	ReleaseReservation(ctx context.Context, tx *gorm.DB, tenantID, reservationID uuid.UUID, consumed bool) (bool, error)

	// EnsureAccount returns the (lazily created) account id for the scope.
	EnsureAccount(ctx context.Context, tx *gorm.DB, tenantID, legalEntityID uuid.UUID, accountType AccountType, currency string) (uuid.UUID, error)
}

type PostEntryInput struct {
	TenantID        uuid.UUID
	LegalEntityID   uuid.UUID
	EntryType       EntryType
	DebitAccountID  uuid.UUID
	CreditAccountID uuid.UUID
	Amount          money.Amount
	SourceType      string
	SourceID        uuid.UUID
	CorrelationID   uuid.UUID
	IdempotencyKey  string
	Metadata        map[string]any
	PostedAt        time.Time
}

type CreateReservationInput struct {
	TenantID      uuid.UUID
	LegalEntityID uuid.UUID
	ReserveType   ReserveType
	Amount        money.Amount
	Currency      string
	SourceType    string
	SourceID      uuid.UUID
}
