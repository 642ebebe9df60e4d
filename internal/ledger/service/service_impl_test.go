package service

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	ledgerdomain "github.com/smallbiznis/payroll-psp-core/internal/ledger/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/ledger/repository"
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
	))
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entry_idem ON ledger_entry(tenant_id, idempotency_key)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_account_scope ON ledger_account(tenant_id, legal_entity_id, account_type, currency)")
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	db := newTestDB(t)
	svc := NewService(Params{Repo: repository.New(), Log: zap.NewNop()}).(*Service)
	return svc, db
}

func mustAmount(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.NewFromString(s)
	require.NoError(t, err)
	return a
}

func TestPostEntry_DoubleSpendPrevention(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()

	tenantID, legalEntityID := uuid.New(), uuid.New()
	debit, err := svc.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountClientNetPayPayable, "USD")
	require.NoError(t, err)
	credit, err := svc.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountPSPSettlementClearing, "USD")
	require.NoError(t, err)

	in := ledgerdomain.PostEntryInput{
		TenantID:        tenantID,
		LegalEntityID:   legalEntityID,
		EntryType:       ledgerdomain.EntryEmployeePaymentInitiated,
		DebitAccountID:  debit,
		CreditAccountID: credit,
		Amount:          mustAmount(t, "5000.0000"),
		SourceType:      "payment_instruction",
		SourceID:        uuid.New(),
		CorrelationID:   uuid.New(),
		IdempotencyKey:  "payment_init_same-key",
		PostedAt:        time.Now(),
	}

	first, err := svc.PostEntry(ctx, db, in)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	second, err := svc.PostEntry(ctx, db, in)
	require.NoError(t, err)
	require.False(t, second.IsNew)
	require.Equal(t, first.EntryID, second.EntryID)

	var count int64
	require.NoError(t, db.Model(&ledgerdomain.LedgerEntry{}).Where("tenant_id = ? AND idempotency_key = ?", tenantID, in.IdempotencyKey).Count(&count).Error)
	require.Equal(t, int64(1), count, "a retried postEntry must never create a second row")
}

func TestPostEntry_RejectsNonPositiveAndSameAccount(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	acct, err := svc.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountClientFundingClearing, "USD")
	require.NoError(t, err)

	_, err = svc.PostEntry(ctx, db, ledgerdomain.PostEntryInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		EntryType: ledgerdomain.EntryFundingReceived,
		DebitAccountID: acct, CreditAccountID: acct,
		Amount: mustAmount(t, "100.0000"), SourceType: "x", SourceID: uuid.New(),
		CorrelationID: uuid.New(), IdempotencyKey: "k1",
	})
	require.ErrorIs(t, err, ledgerdomain.ErrSameAccount)

	other, err := svc.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountPSPFeesRevenue, "USD")
	require.NoError(t, err)
	_, err = svc.PostEntry(ctx, db, ledgerdomain.PostEntryInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		EntryType: ledgerdomain.EntryFundingReceived,
		DebitAccountID: acct, CreditAccountID: other,
		Amount: money.Zero, SourceType: "x", SourceID: uuid.New(),
		CorrelationID: uuid.New(), IdempotencyKey: "k2",
	})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)
}

func TestReverseEntry_SwapsDebitCreditAndPreservesAmount(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	clearing, err := svc.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountPSPSettlementClearing, "USD")
	require.NoError(t, err)
	funding, err := svc.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountClientFundingClearing, "USD")
	require.NoError(t, err)

	original, err := svc.PostEntry(ctx, db, ledgerdomain.PostEntryInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		EntryType:       ledgerdomain.EntryEmployeePaymentSettled,
		DebitAccountID:  clearing,
		CreditAccountID: funding,
		Amount:          mustAmount(t, "5000.0000"),
		SourceType:      "settlement_event", SourceID: uuid.New(),
		CorrelationID: uuid.New(), IdempotencyKey: "settlement_1",
	})
	require.NoError(t, err)

	reversal, err := svc.ReverseEntry(ctx, db, original.EntryID, "settlement_reversal_1", "returned")
	require.NoError(t, err)
	require.True(t, reversal.IsNew)

	var row ledgerdomain.LedgerEntry
	require.NoError(t, db.Where("id = ?", reversal.EntryID).Take(&row).Error)
	require.Equal(t, funding, row.DebitAccountID)
	require.Equal(t, clearing, row.CreditAccountID)
	require.Equal(t, "5000.0000", row.Amount.String())
	require.Equal(t, ledgerdomain.EntryReversal, row.EntryType)
}

func TestReservation_ReducesUnreservedAvailable(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()
	funding, err := svc.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountClientFundingClearing, "USD")
	require.NoError(t, err)
	other, err := svc.EnsureAccount(ctx, db, tenantID, legalEntityID, ledgerdomain.AccountPSPFeesRevenue, "USD")
	require.NoError(t, err)

	_, err = svc.PostEntry(ctx, db, ledgerdomain.PostEntryInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		EntryType: ledgerdomain.EntryFundingReceived,
		DebitAccountID: other, CreditAccountID: funding,
		Amount: mustAmount(t, "50000.0000"), SourceType: "x", SourceID: uuid.New(),
		CorrelationID: uuid.New(), IdempotencyKey: "fund1",
	})
	require.NoError(t, err)

	reservationID, err := svc.CreateReservation(ctx, db, ledgerdomain.CreateReservationInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		ReserveType: ledgerdomain.ReserveNetPay,
		Amount:      mustAmount(t, "15000.0000"),
		Currency:    "USD", SourceType: "pay_run", SourceID: uuid.New(),
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, db, tenantID, legalEntityID, funding)
	require.NoError(t, err)
	require.Equal(t, "50000.0000", balance.Available.String())
	require.Equal(t, "15000.0000", balance.Reserved.String())
	require.Equal(t, "35000.0000", balance.Unreserved.String())

	ok, err := svc.ReleaseReservation(ctx, db, tenantID, reservationID, true)
	require.NoError(t, err)
	require.True(t, ok)

	balance, err = svc.GetBalance(ctx, db, tenantID, legalEntityID, funding)
	require.NoError(t, err)
	require.Equal(t, "0.0000", balance.Reserved.String())
}
