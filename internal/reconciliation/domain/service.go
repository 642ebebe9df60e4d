package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	providerdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/providers/domain"
	"github.com/smallbiznis/payroll-psp-core/pkg/db/pagination"
	"gorm.io/gorm"
)

// Service is Reconciliation's contract (spec §4.4). Run's tenantID is not
// used for filtering: nil or set, records are matched across every tenant
// sharing the bank account.
type Service interface {
	Run(ctx context.Context, tx *gorm.DB, date time.Time, tenantID *uuid.UUID, bankAccountID uuid.UUID, rail string) (Result, error)

	// ProcessRecords applies Run's matching/posting logic to a batch of
	// settlement records obtained out-of-band (e.g. a callback-delivered
	// settlement feed) rather than pulled from a provider by date.
	ProcessRecords(ctx context.Context, tx *gorm.DB, bankAccountID uuid.UUID, rail string, records []providerdomain.SettlementRecord) (Result, error)

	// ListUnmatched is the operator-facing view named in spec §4.4's
	// per-component notes: settlement events the rail confirmed but this
	// core never linked to a ledger entry.
	ListUnmatched(ctx context.Context, tx *gorm.DB, filter UnmatchedFilter) ([]*SettlementEvent, pagination.PageInfo, error)
}
