// Package domain defines the Domain Event Store's types: the append-only
// fact log every other component publishes to (spec §4.7). Table shape
// reconstructed from the donor's billing_events table
// (internal/billingdashboard/rollup/service.go) and outbox call sites
// (internal/ledger/service/service_impl.go's events.Outbox.PublishTx),
// expanded with category/correlation_id/causation_id/version per spec §3/§6.
package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Category groups event types for filtering (spec §4.7 replay/count).
type Category string

const (
	CategoryFunding        Category = "funding"
	CategoryPayment        Category = "payment"
	CategoryLedger         Category = "ledger"
	CategorySettlement     Category = "settlement"
	CategoryLiability      Category = "liability"
	CategoryReconciliation Category = "reconciliation"
)

// Event types emitted across the core (spec §6 "emitted event shapes").
const (
	TypeFundingRequested         = "FundingRequested"
	TypeFundingBlocked           = "FundingBlocked"
	TypeFundingInsufficientFunds = "FundingInsufficientFunds"
	TypeFundingApproved          = "FundingApproved"

	TypePaymentInstructionCreated = "PaymentInstructionCreated"
	TypePaymentSubmitted          = "PaymentSubmitted"
	TypePaymentSettled            = "PaymentSettled"
	TypePaymentFailed             = "PaymentFailed"
	TypePaymentReturned           = "PaymentReturned"

	TypeLedgerEntryPosted   = "LedgerEntryPosted"
	TypeLedgerEntryReversed = "LedgerEntryReversed"

	TypeSettlementReceived       = "SettlementReceived"
	TypeSettlementStatusChanged = "SettlementStatusChanged"

	TypeLiabilityClassified = "LiabilityClassified"

	TypeReconciliationStarted   = "ReconciliationStarted"
	TypeReconciliationCompleted = "ReconciliationCompleted"
)

// DomainEvent is an immutable, once-stored fact.
type DomainEvent struct {
	EventID       uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey"`
	Sequence      int64          `gorm:"column:sequence;not null;index"`
	EventType     string         `gorm:"column:event_type;type:text;not null;index"`
	Category      Category       `gorm:"column:category;type:text;not null;index"`
	TenantID      uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index"`
	CorrelationID uuid.UUID      `gorm:"column:correlation_id;type:uuid;not null;index"`
	CausationID   *uuid.UUID     `gorm:"column:causation_id;type:uuid"`
	Timestamp     time.Time      `gorm:"column:timestamp;not null;index"`
	Payload       datatypes.JSON `gorm:"column:payload;type:jsonb;not null"`
	Version       int            `gorm:"column:version;not null;default:1"`
}

func (DomainEvent) TableName() string { return "domain_event" }

// NewEvent is the input shape callers build before Append/AppendBatch.
type NewEvent struct {
	EventID       uuid.UUID
	EventType     string
	Category      Category
	TenantID      uuid.UUID
	CorrelationID uuid.UUID
	CausationID   *uuid.UUID
	Timestamp     time.Time
	Payload       map[string]any
	Version       int
}

// ReplayFilter narrows a replay/count query.
type ReplayFilter struct {
	TenantID   uuid.UUID
	After      *time.Time
	Before     *time.Time
	Types      []string
	Categories []Category
	Limit      int
	Offset     int
}
