// Package domain defines the Payment Orchestrator's entities and contract
// (spec §3, §4.3): forward-only instruction state machine, provider attempts
// keyed by (provider, provider_request_id), and the companion ledger entry
// deterministic idempotency key. Grounded in the donor's
// internal/payment/domain/model.go entity shape and
// internal/payment/service/service_impl.go's insert/load-on-conflict idiom.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"gorm.io/datatypes"
)

type Purpose string

const (
	PurposeEmployeeNet  Purpose = "employee_net"
	PurposeTaxRemit     Purpose = "tax_remit"
	PurposeThirdParty   Purpose = "third_party"
	PurposeFundingDebit Purpose = "funding_debit"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusQueued    Status = "queued"
	StatusSubmitted Status = "submitted"
	StatusAccepted  Status = "accepted"
	StatusSettled   Status = "settled"
	StatusFailed    Status = "failed"
	StatusReversed  Status = "reversed"
)

// forwardTransitions is the only allowed set of status moves (spec §3):
// created→queued→submitted→accepted→settled(terminal), where a move may skip
// intermediate states as long as it goes forward; any non-terminal→failed(terminal);
// settled→reversed(terminal).
var forwardTransitions = map[Status]map[Status]bool{
	StatusCreated:   {StatusQueued: true, StatusSubmitted: true, StatusAccepted: true, StatusSettled: true, StatusFailed: true},
	StatusQueued:    {StatusSubmitted: true, StatusAccepted: true, StatusSettled: true, StatusFailed: true},
	StatusSubmitted: {StatusAccepted: true, StatusSettled: true, StatusFailed: true},
	StatusAccepted:  {StatusSettled: true, StatusFailed: true},
	StatusSettled:   {StatusReversed: true},
}

// CanTransition reports whether from→to is an allowed forward move.
func CanTransition(from, to Status) bool {
	return forwardTransitions[from][to]
}

func (s Status) IsTerminal() bool {
	return s == StatusSettled || s == StatusFailed || s == StatusReversed
}

// Instruction is the intent to move money for a specific payee.
type Instruction struct {
	ID                     uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	TenantID               uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index;uniqueIndex:ux_payment_instruction_idem,priority:1"`
	LegalEntityID          uuid.UUID      `gorm:"column:legal_entity_id;type:uuid;not null;index"`
	Purpose                Purpose        `gorm:"column:purpose;type:text;not null"`
	Direction              Direction      `gorm:"column:direction;type:text;not null"`
	Amount                 money.Amount   `gorm:"column:amount;type:numeric(18,4);not null"`
	Currency               string         `gorm:"column:currency;type:text;not null"`
	PayeeType              string         `gorm:"column:payee_type;type:text;not null"`
	PayeeRefID             string         `gorm:"column:payee_ref_id;type:text;not null"`
	RequestedSettlementDate time.Time     `gorm:"column:requested_settlement_date"`
	Status                 Status         `gorm:"column:status;type:text;not null;default:created"`
	IdempotencyKey          string         `gorm:"column:idempotency_key;type:text;not null;uniqueIndex:ux_payment_instruction_idem,priority:2"`
	SourceType              string         `gorm:"column:source_type;type:text;not null"`
	SourceID                uuid.UUID      `gorm:"column:source_id;type:uuid;not null"`
	Metadata                datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	CreatedAt               time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt               time.Time      `gorm:"column:updated_at;not null"`
}

func (Instruction) TableName() string { return "payment_instruction" }

type AttemptStatus string

const (
	AttemptAccepted AttemptStatus = "accepted"
	AttemptFailed   AttemptStatus = "failed"
)

// Attempt is one provider submission for an instruction.
type Attempt struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	InstructionID     uuid.UUID      `gorm:"column:instruction_id;type:uuid;not null;index"`
	Rail              string         `gorm:"column:rail;type:text;not null"`
	Provider          string         `gorm:"column:provider;type:text;not null;uniqueIndex:ux_payment_attempt_provider_req,priority:1"`
	ProviderRequestID string         `gorm:"column:provider_request_id;type:text;not null;uniqueIndex:ux_payment_attempt_provider_req,priority:2"`
	Status            AttemptStatus  `gorm:"column:status;type:text;not null"`
	RequestPayload    datatypes.JSON `gorm:"column:request_payload;type:jsonb"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null"`
}

func (Attempt) TableName() string { return "payment_attempt" }

// CreateResult is createInstruction's return shape.
type CreateResult struct {
	InstructionID uuid.UUID
	WasDuplicate  bool
	Status        Status
}

// SubmitResult is submit's return shape.
type SubmitResult struct {
	AttemptID         uuid.UUID
	ProviderRequestID string
	Accepted          bool
	Message           string
}

// CompanionLedgerEntryType returns the posting type submit() records for an
// accepted employee_net instruction, and whether one applies at all.
func CompanionLedgerEntryType(purpose Purpose) (string, bool) {
	if purpose == PurposeEmployeeNet {
		return "employee_payment_initiated", true
	}
	return "", false
}

// ThirdPartyPayee is the reference entry for a recurring third_party
// deduction target (garnishment, benefits vendor, union dues) — spec §3
// supplementary entity. Consulted only for display/metadata enrichment; it
// carries no lifecycle beyond active/inactive and never gates submission.
type ThirdPartyPayee struct {
	TenantID      uuid.UUID `gorm:"column:tenant_id;type:uuid;primaryKey"`
	LegalEntityID uuid.UUID `gorm:"column:legal_entity_id;type:uuid;primaryKey"`
	PayeeRefID    string    `gorm:"column:payee_ref_id;type:text;primaryKey"`
	DisplayName   string    `gorm:"column:display_name;type:text;not null"`
	Active        bool      `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (ThirdPartyPayee) TableName() string { return "third_party_payee" }
