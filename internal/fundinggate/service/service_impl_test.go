package service

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/internal/config"
	fundinggatedomain "github.com/smallbiznis/payroll-psp-core/internal/fundinggate/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/fundinggate/repository"
	ledgerdomain "github.com/smallbiznis/payroll-psp-core/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/payroll-psp-core/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/payroll-psp-core/internal/ledger/service"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.Reservation{},
		&fundinggatedomain.Evaluation{},
	))
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entry_idem ON ledger_entry(tenant_id, idempotency_key)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_account_scope ON ledger_account(tenant_id, legal_entity_id, account_type, currency)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_funding_gate_eval_idem ON funding_gate_evaluation(tenant_id, idempotency_key)")
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	db := newTestDB(t)
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{Repo: ledgerrepository.New(), Log: zap.NewNop()})
	policy, err := config.NewPolicyConfigHolder("/nonexistent-path-for-tests")
	require.NoError(t, err)
	svc := NewService(Params{
		Repo:   repository.New(),
		Ledger: ledgerSvc,
		Policy: policy,
		Log:    zap.NewNop(),
	}).(*Service)
	return svc, db
}

func mustAmount(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.NewFromString(s)
	require.NoError(t, err)
	return a
}

func fundAccount(t *testing.T, svc *Service, db *gorm.DB, tenantID, legalEntityID uuid.UUID, amount money.Amount) {
	t.Helper()
	ctx := t.Context()
	clearing, err := svc.ledger.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountClientFundingClearing, "USD")
	require.NoError(t, err)
	other, err := svc.ledger.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountPSPFeesRevenue, "USD")
	require.NoError(t, err)
	_, err = svc.ledger.PostEntry(ctx, db, ledgerdomain.PostEntryInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		EntryType: ledgerdomain.EntryFundingReceived,
		DebitAccountID: other, CreditAccountID: clearing,
		Amount: amount, SourceType: "test", SourceID: uuid.New(),
		CorrelationID: uuid.New(), IdempotencyKey: "fund-" + uuid.NewString(),
	})
	require.NoError(t, err)
}

func TestEvaluateCommit_PassWhenFundsSufficient(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	fundAccount(t, svc, db, tenantID, legalEntityID, mustAmount(t, "50000.0000"))

	decision, err := svc.EvaluateCommit(ctx, db, fundinggatedomain.EvaluateInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		PayRun:         fundinggatedomain.PayRunSnapshot{PayRunID: uuid.New(), NetPay: mustAmount(t, "15000.0000")},
		FundingModel:   fundinggatedomain.FundingModelNetOnly,
		IdempotencyKey: "commit-1",
		Strict:         true,
	})
	require.NoError(t, err)
	require.Equal(t, fundinggatedomain.OutcomePass, decision.Outcome)
	require.Empty(t, decision.Reasons)
}

func TestEvaluateCommit_HardFailOnInsufficientFundsWhenStrict(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	fundAccount(t, svc, db, tenantID, legalEntityID, mustAmount(t, "10000.0000"))

	decision, err := svc.EvaluateCommit(ctx, db, fundinggatedomain.EvaluateInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		PayRun:         fundinggatedomain.PayRunSnapshot{PayRunID: uuid.New(), NetPay: mustAmount(t, "15000.0000")},
		FundingModel:   fundinggatedomain.FundingModelNetOnly,
		IdempotencyKey: "commit-2",
		Strict:         true,
	})
	require.NoError(t, err)
	require.Equal(t, fundinggatedomain.OutcomeHardFail, decision.Outcome)
	require.Len(t, decision.Reasons, 1)
	require.Equal(t, fundinggatedomain.ReasonInsufficientFunds, decision.Reasons[0].Code)
	require.Equal(t, "5000.0000", *decision.Reasons[0].Shortfall)
}

func TestEvaluateCommit_SoftFailWhenNonStrict(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	fundAccount(t, svc, db, tenantID, legalEntityID, mustAmount(t, "10000.0000"))

	decision, err := svc.EvaluateCommit(ctx, db, fundinggatedomain.EvaluateInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		PayRun:         fundinggatedomain.PayRunSnapshot{PayRunID: uuid.New(), NetPay: mustAmount(t, "15000.0000")},
		FundingModel:   fundinggatedomain.FundingModelNetOnly,
		IdempotencyKey: "commit-3",
		Strict:         false,
	})
	require.NoError(t, err)
	require.Equal(t, fundinggatedomain.OutcomeSoftFail, decision.Outcome)
}

func TestEvaluateCommit_IdempotentByKey(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	// Underfunded on purpose: the first call's hard-fail reasons must replay
	// bit-for-bit on the retried call, not just its outcome/required/available.
	fundAccount(t, svc, db, tenantID, legalEntityID, mustAmount(t, "5000.0000"))

	in := fundinggatedomain.EvaluateInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		PayRun:         fundinggatedomain.PayRunSnapshot{PayRunID: uuid.New(), NetPay: mustAmount(t, "15000.0000")},
		FundingModel:   fundinggatedomain.FundingModelNetOnly,
		IdempotencyKey: "commit-retry",
		Strict:         true,
	}
	first, err := svc.EvaluateCommit(ctx, db, in)
	require.NoError(t, err)
	require.True(t, first.IsNew)
	require.Equal(t, fundinggatedomain.OutcomeHardFail, first.Outcome)
	require.Len(t, first.Reasons, 1)
	require.Equal(t, fundinggatedomain.ReasonInsufficientFunds, first.Reasons[0].Code)

	second, err := svc.EvaluateCommit(ctx, db, in)
	require.NoError(t, err)
	require.False(t, second.IsNew)
	require.Equal(t, first.Outcome, second.Outcome)
	require.Equal(t, first.Required.String(), second.Required.String())
	require.Equal(t, first.Reasons, second.Reasons)
}

func TestEvaluatePay_AlwaysStrictAndSubtractsReservations(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	fundAccount(t, svc, db, tenantID, legalEntityID, mustAmount(t, "20000.0000"))

	_, err := svc.ledger.CreateReservation(ctx, db, ledgerdomain.CreateReservationInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		ReserveType: ledgerdomain.ReserveNetPay, Amount: mustAmount(t, "18000.0000"),
		Currency: "USD", SourceType: "pay_run", SourceID: uuid.New(),
	})
	require.NoError(t, err)

	decision, err := svc.EvaluatePay(ctx, db, fundinggatedomain.EvaluateInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		PayRun:         fundinggatedomain.PayRunSnapshot{PayRunID: uuid.New(), NetPay: mustAmount(t, "5000.0000")},
		FundingModel:   fundinggatedomain.FundingModelNetOnly,
		IdempotencyKey: "pay-1",
		Strict:         false,
	})
	require.NoError(t, err)
	require.Equal(t, fundinggatedomain.OutcomeHardFail, decision.Outcome, "pay gate must be strict regardless of Strict=false")
	require.Equal(t, "2000.0000", decision.Available.String())
}

func TestEvaluateCommit_SpikeDetectedAgainstTrailingAverage(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	fundAccount(t, svc, db, tenantID, legalEntityID, mustAmount(t, "1000000.0000"))

	for i := 0; i < 6; i++ {
		_, err := svc.EvaluatePay(ctx, db, fundinggatedomain.EvaluateInput{
			TenantID: tenantID, LegalEntityID: legalEntityID,
			PayRun:         fundinggatedomain.PayRunSnapshot{PayRunID: uuid.New(), NetPay: mustAmount(t, "10000.0000")},
			FundingModel:   fundinggatedomain.FundingModelNetOnly,
			IdempotencyKey: uuid.NewString(),
		})
		require.NoError(t, err)
	}

	decision, err := svc.EvaluateCommit(ctx, db, fundinggatedomain.EvaluateInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		PayRun:         fundinggatedomain.PayRunSnapshot{PayRunID: uuid.New(), NetPay: mustAmount(t, "16000.0000")},
		FundingModel:   fundinggatedomain.FundingModelNetOnly,
		IdempotencyKey: "commit-spike",
		Strict:         false,
	})
	require.NoError(t, err)
	require.Equal(t, fundinggatedomain.OutcomeSoftFail, decision.Outcome)
	require.Len(t, decision.Reasons, 1)
	require.Equal(t, fundinggatedomain.ReasonSpikeDetected, decision.Reasons[0].Code)
}
