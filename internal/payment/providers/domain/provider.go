// Package domain defines the Provider Abstraction's contract (spec §4.6):
// every rail adapter exposes capability flags, an idempotent submit, and a
// repeatable daily reconcile. The core performs no network I/O outside this
// boundary. Grounded in the donor's internal/payment/domain's
// AdapterFactory/PaymentAdapter split (internal/payment/adapters/stripe) and
// original_source/src/payroll_engine/providers/base.py's capability enum.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
)

type Capabilities struct {
	ACHCredit bool
	ACHDebit  bool
	RTP       bool
	FedNow    bool
	Wire      bool
	Check     bool
}

type SubmitPayload struct {
	InstructionID  uuid.UUID
	Amount         money.Amount
	Currency       string
	IdempotencyKey string
	Purpose        string
	PayeeType      string
	PayeeRefID     string
	Direction      string
	Metadata       map[string]any
}

type SubmitResult struct {
	Accepted          bool
	ProviderRequestID string
	Message           string
}

type SettlementRecord struct {
	ExternalTraceID string
	EffectiveDate   time.Time
	Status          string
	Amount          money.Amount
	Currency        string
	RawPayload      map[string]any
}

// Provider is one rail adapter. Submit must be idempotent on
// payload.IdempotencyKey; calling it twice with the same key must not
// create two movements at the rail.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Submit(ctx context.Context, payload SubmitPayload) (SubmitResult, error)
	Reconcile(ctx context.Context, date time.Time) ([]SettlementRecord, error)
}

var ErrProviderNotFound = providerNotFoundError{}

type providerNotFoundError struct{}

func (providerNotFoundError) Error() string { return "provider: no adapter satisfies the requested rail" }
