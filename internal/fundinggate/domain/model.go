// Package domain defines the Funding Gate's entities and contract (spec
// §4.2): evaluateCommit/evaluatePay are pure decision functions over a
// caller-supplied pay-run snapshot and the legal entity's current balance,
// persisted once per idempotency key. Grounded in the donor's
// internal/invoice billing-policy evaluation shape (config-driven reasons
// list) and original_source/src/payroll_engine/services/funding_service.py's
// required-amount-by-funding-model switch.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
)

// FundingModel determines which pay-statement aggregates sum into "required".
type FundingModel string

const (
	FundingModelPrefundAll        FundingModel = "prefund_all"
	FundingModelNetAndThirdParty  FundingModel = "net_and_third_party"
	FundingModelNetOnly           FundingModel = "net_only"
)

type GateType string

const (
	GateCommit GateType = "commit"
	GatePay    GateType = "pay"
)

type Outcome string

const (
	OutcomePass     Outcome = "pass"
	OutcomeSoftFail Outcome = "soft_fail"
	OutcomeHardFail Outcome = "hard_fail"
)

type ReasonCode string

const (
	ReasonInsufficientFunds ReasonCode = "INSUFFICIENT_FUNDS"
	ReasonSpikeDetected     ReasonCode = "SPIKE_DETECTED"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityBlocking Severity = "blocking"
)

// Reason is one entry in a gate decision's reasons[].
type Reason struct {
	Code      ReasonCode `json:"code"`
	Severity  Severity   `json:"severity"`
	Shortfall *string    `json:"shortfall,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

// PayRunSnapshot is the aggregated view of a pay-run's statements the
// external pay-computation collaborator must expose (spec §9 open question
// on funding_model semantics): net_pay, sum(employer_tax), and
// sum(third_party_deduction).
type PayRunSnapshot struct {
	PayRunID             uuid.UUID
	NetPay               money.Amount
	EmployerTax          money.Amount
	ThirdPartyDeduction  money.Amount
}

// Evaluation is the persisted, idempotent result of one gate call.
type Evaluation struct {
	ID             uuid.UUID    `gorm:"column:id;type:uuid;primaryKey"`
	TenantID       uuid.UUID    `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_funding_gate_eval_idem,priority:1"`
	LegalEntityID  uuid.UUID    `gorm:"column:legal_entity_id;type:uuid;not null;index"`
	PayRunID       uuid.UUID    `gorm:"column:pay_run_id;type:uuid;not null"`
	GateType       GateType     `gorm:"column:gate_type;type:text;not null"`
	IdempotencyKey string       `gorm:"column:idempotency_key;type:text;not null;uniqueIndex:ux_funding_gate_eval_idem,priority:2"`
	Outcome        Outcome      `gorm:"column:outcome;type:text;not null"`
	Required       money.Amount `gorm:"column:required;type:numeric(18,4);not null"`
	Available      money.Amount `gorm:"column:available;type:numeric(18,4);not null"`
	NetPay         money.Amount `gorm:"column:net_pay;type:numeric(18,4);not null"`
	ReasonsJSON    []byte       `gorm:"column:reasons;type:jsonb"`
	EvaluatedAt    time.Time    `gorm:"column:evaluated_at;not null"`
}

func (Evaluation) TableName() string { return "funding_gate_evaluation" }

// Decision is the contract's return shape.
type Decision struct {
	Outcome   Outcome
	Required  money.Amount
	Available money.Amount
	Reasons   []Reason
	IsNew     bool
}
