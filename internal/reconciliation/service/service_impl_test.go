package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	ledgerdomain "github.com/smallbiznis/payroll-psp-core/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/payroll-psp-core/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/payroll-psp-core/internal/ledger/service"
	paymentdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers"
	providerdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/providers/domain"
	paymentrepository "github.com/smallbiznis/payroll-psp-core/internal/payment/repository"
	paymentservice "github.com/smallbiznis/payroll-psp-core/internal/payment/service"
	reconciliationdomain "github.com/smallbiznis/payroll-psp-core/internal/reconciliation/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/reconciliation/repository"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeRail plays both sides of a rail: submit() for the payment orchestrator
// and reconcile() for the settlement feed, so a single adapter can round-trip
// a test instruction from creation through settlement.
type fakeRail struct {
	name    string
	caps    providerdomain.Capabilities
	records []providerdomain.SettlementRecord
	recErr  error
}

func (f *fakeRail) Name() string                              { return f.name }
func (f *fakeRail) Capabilities() providerdomain.Capabilities { return f.caps }
func (f *fakeRail) Submit(ctx context.Context, payload providerdomain.SubmitPayload) (providerdomain.SubmitResult, error) {
	return providerdomain.SubmitResult{Accepted: true, ProviderRequestID: "trace-" + payload.IdempotencyKey}, nil
}
func (f *fakeRail) Reconcile(ctx context.Context, date time.Time) ([]providerdomain.SettlementRecord, error) {
	if f.recErr != nil {
		return nil, f.recErr
	}
	return f.records, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.Reservation{},
		&paymentdomain.Instruction{},
		&paymentdomain.Attempt{},
		&reconciliationdomain.SettlementEvent{},
		&reconciliationdomain.SettlementLink{},
	))
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entry_idem ON ledger_entry(tenant_id, idempotency_key)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_account_scope ON ledger_account(tenant_id, legal_entity_id, account_type, currency)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_instruction_idem ON payment_instruction(tenant_id, idempotency_key)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_attempt_provider_req ON payment_attempt(provider, provider_request_id)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_settlement_event_trace ON settlement_event(bank_account_id, external_trace_id)")
	return db
}

type testHarness struct {
	db          *gorm.DB
	payment     paymentdomain.Service
	paymentRepo *paymentrepository.Repository
	reconciler  *Service
	rail        *fakeRail
}

func newHarness(t *testing.T) *testHarness {
	db := newTestDB(t)
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{Repo: ledgerrepository.New(), Log: zap.NewNop()})
	rail := &fakeRail{name: "ach", caps: providerdomain.Capabilities{ACHCredit: true}}
	registry := providers.NewRegistry(rail)

	paymentRepo := paymentrepository.New()
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		Repo: paymentRepo, Ledger: ledgerSvc, Registry: registry, Log: zap.NewNop(),
	})

	reconciler := NewService(Params{
		Repo:        repository.New(),
		PaymentRepo: paymentRepo,
		Payment:     paymentSvc,
		Ledger:      ledgerSvc,
		Registry:    registry,
		Log:         zap.NewNop(),
	}).(*Service)

	return &testHarness{db: db, payment: paymentSvc, paymentRepo: paymentRepo, reconciler: reconciler, rail: rail}
}

func mustAmount(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.NewFromString(s)
	require.NoError(t, err)
	return a
}

// submitInstruction creates and submits an employee_net instruction through
// the fake rail, returning its id and the provider_request_id the rail
// assigned — the value settlement records must key off of to match.
func submitInstruction(t *testing.T, h *testHarness, tenantID, legalEntityID uuid.UUID, idempotencyKey string, amount money.Amount) (uuid.UUID, string) {
	t.Helper()
	ctx := t.Context()
	created, err := h.payment.CreateInstruction(ctx, h.db, paymentdomain.CreateInstructionInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		Purpose: paymentdomain.PurposeEmployeeNet, Direction: paymentdomain.DirectionOutbound,
		Amount: amount, Currency: "USD",
		PayeeType: "employee", PayeeRefID: "emp-1",
		IdempotencyKey: idempotencyKey, SourceType: "pay_run", SourceID: uuid.New(),
	})
	require.NoError(t, err)

	result, err := h.payment.Submit(ctx, h.db, tenantID, created.InstructionID, "")
	require.NoError(t, err)
	require.True(t, result.Accepted)
	return created.InstructionID, result.ProviderRequestID
}

func TestRun_SettledMatchAdvancesInstructionAndPostsLedgerEntry(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	bankAccountID := uuid.New()
	amount := mustAmount(t, "5000.0000")

	instructionID, providerRequestID := submitInstruction(t, h, tenantID, legalEntityID, "settle-1", amount)

	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	h.rail.records = []providerdomain.SettlementRecord{{
		ExternalTraceID: providerRequestID,
		EffectiveDate:   date,
		Status:          "settled",
		Amount:          amount,
		Currency:        "USD",
	}}

	result, err := h.reconciler.Run(ctx, h.db, date, nil, bankAccountID, "ach")
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Matched)
	require.Equal(t, 1, result.Created)
	require.Empty(t, result.Errors)

	instruction, err := h.paymentRepo.FindByIDAny(h.db, instructionID)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.StatusSettled, instruction.Status)

	var entryCount int64
	require.NoError(t, h.db.Model(&ledgerdomain.LedgerEntry{}).
		Where("entry_type = ?", string(ledgerdomain.EntryEmployeePaymentSettled)).
		Count(&entryCount).Error)
	require.Equal(t, int64(1), entryCount)

	var linkCount int64
	require.NoError(t, h.db.Model(&reconciliationdomain.SettlementLink{}).Count(&linkCount).Error)
	require.Equal(t, int64(1), linkCount)

	// Re-running for the same date with the same records is a no-op: the
	// settlement event already exists and the instruction is already settled.
	result2, err := h.reconciler.Run(ctx, h.db, date, nil, bankAccountID, "ach")
	require.NoError(t, err)
	require.Equal(t, 1, result2.Processed)
	require.Equal(t, 0, result2.Created)

	require.NoError(t, h.db.Model(&ledgerdomain.LedgerEntry{}).
		Where("entry_type = ?", string(ledgerdomain.EntryEmployeePaymentSettled)).
		Count(&entryCount).Error)
	require.Equal(t, int64(1), entryCount, "idempotent re-run must not double-post the settlement entry")
}

func TestRun_ReturnedAfterSettledPostsExactlyOneReversal(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	bankAccountID := uuid.New()
	amount := mustAmount(t, "2500.0000")

	instructionID, providerRequestID := submitInstruction(t, h, tenantID, legalEntityID, "settle-return-1", amount)

	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	h.rail.records = []providerdomain.SettlementRecord{{
		ExternalTraceID: providerRequestID, EffectiveDate: date, Status: "settled", Amount: amount, Currency: "USD",
	}}
	_, err := h.reconciler.Run(ctx, h.db, date, nil, bankAccountID, "ach")
	require.NoError(t, err)

	returnDate := date.AddDate(0, 0, 2)
	h.rail.records = []providerdomain.SettlementRecord{{
		ExternalTraceID: providerRequestID, EffectiveDate: returnDate, Status: "returned", Amount: amount, Currency: "USD",
	}}
	result, err := h.reconciler.Run(ctx, h.db, returnDate, nil, bankAccountID, "ach")
	require.NoError(t, err)
	require.Equal(t, 0, result.Created)
	require.Equal(t, 1, result.Matched)

	instruction, err := h.paymentRepo.FindByIDAny(h.db, instructionID)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.StatusReversed, instruction.Status)

	var reversalCount int64
	require.NoError(t, h.db.Model(&ledgerdomain.LedgerEntry{}).
		Where("entry_type = ?", string(ledgerdomain.EntryReversal)).
		Count(&reversalCount).Error)
	require.Equal(t, int64(1), reversalCount)

	// Re-running the return feed a second time must not post a second reversal.
	result2, err := h.reconciler.Run(ctx, h.db, returnDate, nil, bankAccountID, "ach")
	require.NoError(t, err)
	require.Equal(t, 0, result2.Created)
	require.NoError(t, h.db.Model(&ledgerdomain.LedgerEntry{}).
		Where("entry_type = ?", string(ledgerdomain.EntryReversal)).
		Count(&reversalCount).Error)
	require.Equal(t, int64(1), reversalCount)
}

func TestRun_UnmatchedSettlementIsNotAnError(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	bankAccountID := uuid.New()
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	h.rail.records = []providerdomain.SettlementRecord{{
		ExternalTraceID: "trace-with-no-matching-attempt",
		EffectiveDate:   date,
		Status:          "settled",
		Amount:          mustAmount(t, "100.0000"),
		Currency:        "USD",
	}}

	result, err := h.reconciler.Run(ctx, h.db, date, nil, bankAccountID, "ach")
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Matched)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 0, result.Failed)
	require.Empty(t, result.Errors)
}

func TestListUnmatched_SurfacesSettledEventsWithNoLedgerLinkAndPaginates(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	bankAccountID := uuid.New()
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	h.rail.records = []providerdomain.SettlementRecord{
		{ExternalTraceID: "unmatched-1", EffectiveDate: date, Status: "settled", Amount: mustAmount(t, "100.0000"), Currency: "USD"},
		{ExternalTraceID: "unmatched-2", EffectiveDate: date.Add(time.Minute), Status: "settled", Amount: mustAmount(t, "200.0000"), Currency: "USD"},
	}
	result, err := h.reconciler.Run(ctx, h.db, date, nil, bankAccountID, "ach")
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)

	page1, info1, err := h.reconciler.ListUnmatched(ctx, h.db, reconciliationdomain.UnmatchedFilter{
		BankAccountID: bankAccountID, PageSize: 1,
	})
	require.NoError(t, err)
	require.Len(t, page1, 1)
	require.True(t, info1.HasMore)
	require.NotEmpty(t, info1.NextPageToken)

	page2, info2, err := h.reconciler.ListUnmatched(ctx, h.db, reconciliationdomain.UnmatchedFilter{
		BankAccountID: bankAccountID, PageSize: 1, PageToken: info1.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	require.False(t, info2.HasMore)
	require.NotEqual(t, page1[0].ExternalTraceID, page2[0].ExternalTraceID, "the two pages must not repeat the same row")
	require.ElementsMatch(t, []string{"unmatched-1", "unmatched-2"}, []string{page1[0].ExternalTraceID, page2[0].ExternalTraceID})

	// Once a settlement is actually matched and linked to a ledger entry, it
	// drops out of the unmatched view.
	_, providerRequestID := submitInstruction(t, h, uuid.New(), uuid.New(), "settle-matched-1", mustAmount(t, "50.0000"))
	h.rail.records = []providerdomain.SettlementRecord{{
		ExternalTraceID: providerRequestID, EffectiveDate: date, Status: "settled", Amount: mustAmount(t, "50.0000"), Currency: "USD",
	}}
	_, err = h.reconciler.Run(ctx, h.db, date, nil, bankAccountID, "ach")
	require.NoError(t, err)

	all, info3, err := h.reconciler.ListUnmatched(ctx, h.db, reconciliationdomain.UnmatchedFilter{BankAccountID: bankAccountID})
	require.NoError(t, err)
	require.Len(t, all, 2, "the matched-and-linked settlement must not appear in the unmatched view")
	require.False(t, info3.HasMore)
}

func TestRun_ProviderFetchErrorIsRecordedNotPanicked(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	bankAccountID := uuid.New()
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	h.rail.recErr = context.DeadlineExceeded

	result, err := h.reconciler.Run(ctx, h.db, date, nil, bankAccountID, "ach")
	require.NoError(t, err)
	require.Equal(t, 0, result.Processed)
	require.Len(t, result.Errors, 1)
}
