package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"gorm.io/gorm"
)

// Service is Liability Attribution's contract (spec §4.5).
type Service interface {
	// ClassifyReturn is a pure function of its inputs: no I/O beyond the
	// return_code_reference lookup, and the same inputs always yield the
	// same classification.
	ClassifyReturn(ctx context.Context, tx *gorm.DB, rail, returnCode string, amount money.Amount, context *ClassifyContext) (Classification, error)

	RecordLiabilityEvent(ctx context.Context, tx *gorm.DB, in RecordEventInput) (RecordResult, error)

	UpdateRecoveryStatus(ctx context.Context, tx *gorm.DB, tenantID, eventID uuid.UUID, newStatus RecoveryStatus, recoveryAmount *money.Amount) (bool, error)
}

type RecordEventInput struct {
	TenantID       uuid.UUID
	LegalEntityID  uuid.UUID
	SourceType     string
	SourceID       uuid.UUID
	Classification Classification
	Evidence       map[string]any
	IdempotencyKey string
}
