package domain

import (
	"context"

	"gorm.io/gorm"
)

// Service is the Facade's contract (spec §4.8): the only entry point a
// caller outside this module needs, composing every bounded context behind
// one correlation_id per call.
type Service interface {
	CommitPayrollBatch(ctx context.Context, tx *gorm.DB, batch PayrollBatch) (CommitResult, error)
	ExecutePayments(ctx context.Context, tx *gorm.DB, in ExecuteInput) (ExecuteResult, error)
	IngestSettlementFeed(ctx context.Context, tx *gorm.DB, in IngestInput) (IngestResult, error)
	HandleProviderCallback(ctx context.Context, tx *gorm.DB, in CallbackInput) (CallbackResult, error)
}
