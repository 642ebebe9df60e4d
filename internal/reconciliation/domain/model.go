// Package domain defines Reconciliation's entities and contract (spec §3,
// §4.4): settlement events are the truth arriving from a rail, matched
// against payment attempts, with every write keyed so re-running the job
// for the same date is a no-op. Grounded in the donor's
// internal/payment/repository/repository_impl.go raw-SQL idiom for
// idempotent event ingestion.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"gorm.io/datatypes"
)

type SettlementStatus string

const (
	SettlementCreated   SettlementStatus = "created"
	SettlementSubmitted SettlementStatus = "submitted"
	SettlementAccepted  SettlementStatus = "accepted"
	SettlementSettled   SettlementStatus = "settled"
	SettlementFailed    SettlementStatus = "failed"
	SettlementReversed  SettlementStatus = "reversed"
)

// settlementOrder is the allowed forward order; settled -> reversed is the
// one permitted "backwards-looking" move (a return), per spec §3.
var settlementOrder = map[SettlementStatus]int{
	SettlementCreated:   0,
	SettlementSubmitted: 1,
	SettlementAccepted:  2,
	SettlementSettled:   3,
	SettlementFailed:    3,
	SettlementReversed:  4,
}

// CanAdvance reports whether from->to is allowed: strictly forward, or the
// settled->reversed return path.
func CanAdvance(from, to SettlementStatus) bool {
	if from == SettlementSettled && to == SettlementReversed {
		return true
	}
	return settlementOrder[to] > settlementOrder[from]
}

type SettlementEvent struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BankAccountID   uuid.UUID        `gorm:"column:bank_account_id;type:uuid;not null;index;uniqueIndex:ux_settlement_event_trace,priority:1"`
	Rail            string           `gorm:"column:rail;type:text;not null"`
	Direction       string           `gorm:"column:direction;type:text;not null"`
	Amount          money.Amount     `gorm:"column:amount;type:numeric(18,4);not null"`
	Currency        string           `gorm:"column:currency;type:text;not null"`
	Status          SettlementStatus `gorm:"column:status;type:text;not null"`
	ExternalTraceID string           `gorm:"column:external_trace_id;type:text;not null;uniqueIndex:ux_settlement_event_trace,priority:2"`
	EffectiveDate   time.Time        `gorm:"column:effective_date;not null"`
	RawPayload      datatypes.JSON   `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt       time.Time        `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;not null"`
}

func (SettlementEvent) TableName() string { return "settlement_event" }

// SettlementLink joins a settlement event to the ledger entries it caused.
type SettlementLink struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SettlementEventID  uuid.UUID `gorm:"column:settlement_event_id;type:uuid;not null;index"`
	LedgerEntryID      uuid.UUID `gorm:"column:ledger_entry_id;type:uuid;not null;index"`
	CreatedAt          time.Time `gorm:"column:created_at;not null"`
}

func (SettlementLink) TableName() string { return "settlement_link" }

// Result is run()'s return shape.
type Result struct {
	Processed int
	Matched   int
	Created   int
	Failed    int
	Errors    []string
}

// UnmatchedFilter narrows the operator-facing unmatched-settlements view
// (spec §4.4 per-component notes): settled/reversed events with no
// settlement_link row, i.e. a rail confirmed money moved but this core never
// recorded the corresponding ledger posting.
type UnmatchedFilter struct {
	BankAccountID uuid.UUID
	Rail          string
	PageToken     string
	PageSize      int
}
