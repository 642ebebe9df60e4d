// Package domain defines the Ledger's entities and contract (spec §3, §4.1):
// append-only double-entry postings, balances computed by aggregation, and
// reservations that narrow "available" without moving money. Struct shapes
// follow the donor's internal/ledger/domain/models.go GORM conventions,
// adapted from snowflake.ID keys to UUIDs and from int64 cents to
// pkg/money.Amount per the specification's fixed-point requirement.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"gorm.io/datatypes"
)

// AccountType is the closed set of ledger account purposes (spec §3).
type AccountType string

const (
	AccountClientFundingClearing  AccountType = "client_funding_clearing"
	AccountClientNetPayPayable    AccountType = "client_net_pay_payable"
	AccountClientTaxImpoundPayable AccountType = "client_tax_impound_payable"
	AccountClientThirdPartyPayable AccountType = "client_third_party_payable"
	AccountPSPFeesRevenue         AccountType = "psp_fees_revenue"
	AccountPSPSettlementClearing  AccountType = "psp_settlement_clearing"
)

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusClosed AccountStatus = "closed"
)

// LedgerAccount is unique per (tenant, legal_entity, account_type, currency);
// created lazily on first use, never deleted.
type LedgerAccount struct {
	ID           uuid.UUID     `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     uuid.UUID     `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_ledger_account_scope,priority:1"`
	LegalEntityID uuid.UUID    `gorm:"column:legal_entity_id;type:uuid;not null;uniqueIndex:ux_ledger_account_scope,priority:2"`
	AccountType  AccountType   `gorm:"column:account_type;type:text;not null;uniqueIndex:ux_ledger_account_scope,priority:3"`
	Currency     string        `gorm:"column:currency;type:text;not null;uniqueIndex:ux_ledger_account_scope,priority:4"`
	Status       AccountStatus `gorm:"column:status;type:text;not null;default:active"`
	CreatedAt    time.Time     `gorm:"column:created_at;not null"`
}

func (LedgerAccount) TableName() string { return "ledger_account" }

// EntryType is the closed set of posting reasons (spec §3).
type EntryType string

const (
	EntryFundingReceived             EntryType = "funding_received"
	EntryFundingReturned             EntryType = "funding_returned"
	EntryReserveCreated              EntryType = "reserve_created"
	EntryReserveReleased             EntryType = "reserve_released"
	EntryEmployeePaymentInitiated    EntryType = "employee_payment_initiated"
	EntryEmployeePaymentSettled      EntryType = "employee_payment_settled"
	EntryEmployeePaymentFailed       EntryType = "employee_payment_failed"
	EntryTaxPaymentInitiated         EntryType = "tax_payment_initiated"
	EntryTaxPaymentSettled           EntryType = "tax_payment_settled"
	EntryThirdPartyPaymentInitiated  EntryType = "third_party_payment_initiated"
	EntryThirdPartyPaymentSettled    EntryType = "third_party_payment_settled"
	EntryFeeAssessed                 EntryType = "fee_assessed"
	EntryReversal                    EntryType = "reversal"
)

// LedgerEntry is an append-only double-entry posting. UPDATE/DELETE are
// rejected by the storage layer (migration trigger), never by application
// code — the service layer is not the last line of defense.
type LedgerEntry struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	TenantID        uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index;uniqueIndex:ux_ledger_entry_idem,priority:1"`
	LegalEntityID   uuid.UUID      `gorm:"column:legal_entity_id;type:uuid;not null;index"`
	PostedAt        time.Time      `gorm:"column:posted_at;not null"`
	EntryType       EntryType      `gorm:"column:entry_type;type:text;not null"`
	DebitAccountID  uuid.UUID      `gorm:"column:debit_account_id;type:uuid;not null;index"`
	CreditAccountID uuid.UUID      `gorm:"column:credit_account_id;type:uuid;not null;index"`
	Amount          money.Amount   `gorm:"column:amount;type:numeric(18,4);not null"`
	SourceType      string         `gorm:"column:source_type;type:text;not null"`
	SourceID        uuid.UUID      `gorm:"column:source_id;type:uuid;not null"`
	CorrelationID   uuid.UUID      `gorm:"column:correlation_id;type:uuid;not null"`
	IdempotencyKey  string         `gorm:"column:idempotency_key;type:text;not null;uniqueIndex:ux_ledger_entry_idem,priority:2"`
	Metadata        datatypes.JSON `gorm:"column:metadata;type:jsonb"`
}

func (LedgerEntry) TableName() string { return "ledger_entry" }

type ReserveType string

const (
	ReserveNetPay     ReserveType = "net_pay"
	ReserveTax        ReserveType = "tax"
	ReserveThirdParty ReserveType = "third_party"
	ReserveFees       ReserveType = "fees"
)

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "active"
	ReservationReleased ReservationStatus = "released"
	ReservationConsumed ReservationStatus = "consumed"
)

// Reservation is a named hold that narrows "unreserved available" without
// moving ledger money.
type Reservation struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID         `gorm:"column:tenant_id;type:uuid;not null;index"`
	LegalEntityID uuid.UUID         `gorm:"column:legal_entity_id;type:uuid;not null;index"`
	ReserveType   ReserveType       `gorm:"column:reserve_type;type:text;not null"`
	Amount        money.Amount      `gorm:"column:amount;type:numeric(18,4);not null"`
	Currency      string            `gorm:"column:currency;type:text;not null"`
	Status        ReservationStatus `gorm:"column:status;type:text;not null;default:active;index"`
	SourceType    string            `gorm:"column:source_type;type:text;not null"`
	SourceID      uuid.UUID         `gorm:"column:source_id;type:uuid;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;not null"`
	ReleasedAt    *time.Time        `gorm:"column:released_at"`
}

func (Reservation) TableName() string { return "reservation" }

// Balance is the result of getBalance (spec §4.1): available is the
// account's own aggregation; reserved/unreserved are computed against the
// owning legal entity's active reservations.
type Balance struct {
	Available  money.Amount
	Reserved   money.Amount
	Unreserved money.Amount
}

// PostResult is returned by postEntry/reverseEntry.
type PostResult struct {
	EntryID uuid.UUID
	IsNew   bool
}
