package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"gorm.io/gorm"
)

// Service is the Payment Orchestrator's contract (spec §4.3).
type Service interface {
	CreateInstruction(ctx context.Context, tx *gorm.DB, in CreateInstructionInput) (CreateResult, error)
	// railOverride names a specific rail to use instead of capability
	// preference order (spec.md executePayments' optional rail? parameter);
	// empty means fall back to preference order.
	Submit(ctx context.Context, tx *gorm.DB, tenantID, instructionID uuid.UUID, railOverride string) (SubmitResult, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, tenantID, instructionID uuid.UUID, newStatus Status) error
}

type CreateInstructionInput struct {
	TenantID                uuid.UUID
	LegalEntityID            uuid.UUID
	Purpose                  Purpose
	Direction                Direction
	Amount                    money.Amount
	Currency                  string
	PayeeType                 string
	PayeeRefID                string
	RequestedSettlementDate   time.Time
	IdempotencyKey            string
	SourceType                string
	SourceID                  uuid.UUID
	Metadata                  map[string]any
}
