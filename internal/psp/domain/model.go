// Package domain defines the Facade's entities and contract (spec §4.8):
// the four orchestration calls composing Funding Gate, Ledger, Payment
// Orchestrator, Reconciliation, Liability Attribution, and the Domain Event
// Store into a single-transaction flow, one correlation_id per call.
// Grounded in original_source/src/payroll_engine/psp/services/facade.py's
// commit_payroll_batch/execute_payments/ingest_settlement_feed/
// handle_provider_callback orchestration shape.
package domain

import (
	"time"

	"github.com/google/uuid"
	fundinggatedomain "github.com/smallbiznis/payroll-psp-core/internal/fundinggate/domain"
	liabilitydomain "github.com/smallbiznis/payroll-psp-core/internal/liability/domain"
	paymentdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/domain"
	providerdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/providers/domain"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
)

// BatchItem is one payee line in a payroll batch (spec §4.8 non-goals keep
// the upstream pay-computation opaque; the facade only needs the already
// computed payee/amount/purpose tuples).
type BatchItem struct {
	PayeeType               string
	PayeeRefID              string
	Purpose                 paymentdomain.Purpose
	Amount                  money.Amount
	Currency                string
	RequestedSettlementDate time.Time
	IdempotencyKey          string
}

// PayrollBatch is commitPayrollBatch's input: a pay run's full set of
// payments, not yet evaluated against the Funding Gate.
type PayrollBatch struct {
	TenantID       uuid.UUID
	LegalEntityID  uuid.UUID
	PayRunID       uuid.UUID
	FundingModel   fundinggatedomain.FundingModel
	IdempotencyKey string
	Items          []BatchItem
}

// CommitStatus is commitPayrollBatch's closed result-status set (spec §4.8
// point 1, scenarios S2/S6).
type CommitStatus string

const (
	CommitApproved      CommitStatus = "approved"
	CommitBlockedFunds  CommitStatus = "blocked_funds"
	CommitBlockedPolicy CommitStatus = "blocked_policy"
)

type CommitResult struct {
	Status        CommitStatus
	ReservationID *uuid.UUID
	Total         money.Amount
	ApprovedCount int
	BlockedCount  int
	Reason        string
	CorrelationID uuid.UUID
}

// ExecuteInput is executePayments' input: the same batch items, plus the
// reservation commitPayrollBatch created and an optional rail override.
type ExecuteInput struct {
	TenantID       uuid.UUID
	LegalEntityID  uuid.UUID
	PayRunID       uuid.UUID
	Items          []BatchItem
	ReservationID  *uuid.UUID
	IdempotencyKey string
	Rail           *string
}

// ItemResult is one batch item's outcome from executePayments.
type ItemResult struct {
	InstructionID uuid.UUID
	WasDuplicate  bool
	Status        paymentdomain.Status
	Accepted      bool
	Message       string
}

type ExecuteResult struct {
	CorrelationID       uuid.UUID
	Items               []ItemResult
	ReservationConsumed bool
	Status              string // "submitted" | "blocked"
	Reason              string
}

// IngestInput is ingestSettlementFeed's input: a batch of settlement
// records already fetched for a bank account/rail (spec §4.8 point 3).
type IngestInput struct {
	TenantID      *uuid.UUID
	BankAccountID uuid.UUID
	Rail          string
	Records       []providerdomain.SettlementRecord
}

type IngestResult struct {
	CorrelationID uuid.UUID
	Processed     int
	Matched       int
	Created       int
	Failed        int
	Errors        []string
}

// CallbackInput is handleProviderCallback's input: a single provider
// notification keyed by provider_request_id (spec §4.8 point 4).
type CallbackInput struct {
	TenantID          uuid.UUID
	Rail              string
	CallbackType      string // "return" | "returned" | "settlement" | "settled"
	ProviderRequestID string
	ReturnCode        string
	Evidence          map[string]any
	Context           *liabilitydomain.ClassifyContext
}

// CallbackStatus is handleProviderCallback's closed result-status set.
type CallbackStatus string

const (
	CallbackProcessed CallbackStatus = "processed"
	CallbackDuplicate CallbackStatus = "duplicate"
	CallbackInvalid   CallbackStatus = "invalid"
	CallbackUnknown   CallbackStatus = "unknown"
)

type CallbackResult struct {
	Status           CallbackStatus
	InstructionID    *uuid.UUID
	LiabilityEventID *uuid.UUID
	CorrelationID    uuid.UUID
}
