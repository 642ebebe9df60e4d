package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the Funding Gate's contract (spec §4.2). evaluatePay is always
// strict and always subtracts active reservations from available; callers
// never pass strict=false to it.
type Service interface {
	EvaluateCommit(ctx context.Context, tx *gorm.DB, in EvaluateInput) (Decision, error)
	EvaluatePay(ctx context.Context, tx *gorm.DB, in EvaluateInput) (Decision, error)
}

type EvaluateInput struct {
	TenantID       uuid.UUID
	LegalEntityID  uuid.UUID
	PayRun         PayRunSnapshot
	FundingModel   FundingModel
	IdempotencyKey string
	Strict         bool
}
