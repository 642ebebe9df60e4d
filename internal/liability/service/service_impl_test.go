package service

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	liabilitydomain "github.com/smallbiznis/payroll-psp-core/internal/liability/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/liability/repository"
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
		&liabilitydomain.ReturnCodeReference{},
		&liabilitydomain.Event{},
	))
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_liability_event_idem ON liability_event(tenant_id, idempotency_key)")
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

func seedReturnCode(t *testing.T, db *gorm.DB, row liabilitydomain.ReturnCodeReference) {
	t.Helper()
	require.NoError(t, db.Create(&row).Error)
}

func TestClassifyReturn_KnownCodeEmployerRecoverableOffsetsFuture(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	seedReturnCode(t, db, liabilitydomain.ReturnCodeReference{
		Rail: "ach", Code: "R01",
		DefaultErrorOrigin: liabilitydomain.ErrorOriginRecipient,
		DefaultParty:       liabilitydomain.PartyEmployer,
		IsRecoverable:      true,
		Description:        "Insufficient funds",
	})

	classification, err := svc.ClassifyReturn(ctx, db, "ach", "R01", mustAmount(t, "5000.0000"), nil)
	require.NoError(t, err)
	require.Equal(t, liabilitydomain.ErrorOriginRecipient, classification.ErrorOrigin)
	require.Equal(t, liabilitydomain.PartyEmployer, classification.LiabilityParty)
	require.Equal(t, liabilitydomain.RecoveryOffsetFuture, classification.RecoveryPath)
	require.True(t, classification.IsRecoverable)
}

func TestClassifyReturn_UnknownCodeDefaultsToPendingDispute(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()

	classification, err := svc.ClassifyReturn(ctx, db, "ach", "R99", mustAmount(t, "100.0000"), nil)
	require.NoError(t, err)
	require.Equal(t, liabilitydomain.ErrorOriginRecipient, classification.ErrorOrigin)
	require.Equal(t, liabilitydomain.PartyPending, classification.LiabilityParty)
	require.Equal(t, liabilitydomain.RecoveryDispute, classification.RecoveryPath)
	require.False(t, classification.IsRecoverable)
}

func TestClassifyReturn_RepeatFailureEscalatesToEmployer(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	seedReturnCode(t, db, liabilitydomain.ReturnCodeReference{
		Rail: "ach", Code: "R02",
		DefaultErrorOrigin: liabilitydomain.ErrorOriginBank,
		DefaultParty:       liabilitydomain.PartyProcessor,
		IsRecoverable:      false,
		Description:        "Account closed",
	})

	classification, err := svc.ClassifyReturn(ctx, db, "ach", "R02", mustAmount(t, "250.0000"), &liabilitydomain.ClassifyContext{
		RepeatFailureCount: 3,
	})
	require.NoError(t, err)
	require.Equal(t, liabilitydomain.PartyEmployer, classification.LiabilityParty)
	// Not recoverable per the seeded reference, so offset_future does not apply.
	require.Equal(t, liabilitydomain.RecoveryNone, classification.RecoveryPath)
}

func TestClassifyReturn_OurDataErrorOverridesToPSPWriteOff(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	seedReturnCode(t, db, liabilitydomain.ReturnCodeReference{
		Rail: "ach", Code: "R03",
		DefaultErrorOrigin: liabilitydomain.ErrorOriginRecipient,
		DefaultParty:       liabilitydomain.PartyPending,
		IsRecoverable:      false,
		Description:        "No account",
	})

	classification, err := svc.ClassifyReturn(ctx, db, "ach", "R03", mustAmount(t, "75.0000"), &liabilitydomain.ClassifyContext{
		OurDataError: true, ErrorDetail: "wrong routing number on file",
	})
	require.NoError(t, err)
	require.Equal(t, liabilitydomain.ErrorOriginPayrollEngine, classification.ErrorOrigin)
	require.Equal(t, liabilitydomain.PartyPSP, classification.LiabilityParty)
	require.Equal(t, liabilitydomain.RecoveryWriteOff, classification.RecoveryPath)
	require.Contains(t, classification.DeterminationReason, "wrong routing number on file")
}

func TestRecordLiabilityEvent_IdempotentByKey(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()

	classification := liabilitydomain.Classification{
		ErrorOrigin: liabilitydomain.ErrorOriginRecipient, LiabilityParty: liabilitydomain.PartyEmployer,
		RecoveryPath: liabilitydomain.RecoveryOffsetFuture, LossAmount: mustAmount(t, "5000.0000"),
		DeterminationReason: "Return code R01", IsRecoverable: true,
	}
	in := liabilitydomain.RecordEventInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		SourceType: "settlement_event", SourceID: uuid.New(),
		Classification: classification, IdempotencyKey: "liab-1",
	}

	first, err := svc.RecordLiabilityEvent(ctx, db, in)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	second, err := svc.RecordLiabilityEvent(ctx, db, in)
	require.NoError(t, err)
	require.False(t, second.IsNew)
	require.Equal(t, first.EventID, second.EventID)

	var count int64
	require.NoError(t, db.Model(&liabilitydomain.Event{}).Where("tenant_id = ?", tenantID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestUpdateRecoveryStatus_TerminalStatusSetsResolvedAt(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()

	classification := liabilitydomain.Classification{
		ErrorOrigin: liabilitydomain.ErrorOriginProvider, LiabilityParty: liabilitydomain.PartyPSP,
		RecoveryPath: liabilitydomain.RecoveryWriteOff, LossAmount: mustAmount(t, "1000.0000"),
		DeterminationReason: "processor error",
	}
	recorded, err := svc.RecordLiabilityEvent(ctx, db, liabilitydomain.RecordEventInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		SourceType: "payment_instruction", SourceID: uuid.New(),
		Classification: classification, IdempotencyKey: "liab-resolve-1",
	})
	require.NoError(t, err)

	recoveryAmount := mustAmount(t, "1000.0000")
	ok, err := svc.UpdateRecoveryStatus(ctx, db, tenantID, recorded.EventID, liabilitydomain.RecoveryWrittenOff, &recoveryAmount)
	require.NoError(t, err)
	require.True(t, ok)

	updated, err := svc.repo.FindByID(db, tenantID, recorded.EventID)
	require.NoError(t, err)
	require.Equal(t, liabilitydomain.RecoveryWrittenOff, updated.RecoveryStatus)
	require.NotNil(t, updated.ResolvedAt)
	require.Equal(t, "1000.0000", updated.RecoveryAmount.String())
}

func TestUpdateRecoveryStatus_NonTerminalLeavesResolvedAtNil(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID, legalEntityID := uuid.New(), uuid.New()

	classification := liabilitydomain.Classification{
		ErrorOrigin: liabilitydomain.ErrorOriginBank, LiabilityParty: liabilitydomain.PartyPending,
		RecoveryPath: liabilitydomain.RecoveryDispute, LossAmount: mustAmount(t, "300.0000"),
		DeterminationReason: "investigating",
	}
	recorded, err := svc.RecordLiabilityEvent(ctx, db, liabilitydomain.RecordEventInput{
		TenantID: tenantID, LegalEntityID: legalEntityID,
		SourceType: "payment_instruction", SourceID: uuid.New(),
		Classification: classification, IdempotencyKey: "liab-resolve-2",
	})
	require.NoError(t, err)

	ok, err := svc.UpdateRecoveryStatus(ctx, db, tenantID, recorded.EventID, liabilitydomain.RecoveryInProgress, nil)
	require.NoError(t, err)
	require.True(t, ok)

	updated, err := svc.repo.FindByID(db, tenantID, recorded.EventID)
	require.NoError(t, err)
	require.Equal(t, liabilitydomain.RecoveryInProgress, updated.RecoveryStatus)
	require.Nil(t, updated.ResolvedAt)
}
