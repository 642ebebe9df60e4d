// Package service implements the Ledger (spec §4.1): postEntry/reverseEntry
// are single statements inside the caller's transaction; uniqueness of
// idempotency_key is enforced by the storage layer, never by application
// locks. No entry is ever mutated — reversals are the only correction
// mechanism. Grounded in the donor's internal/ledger/service/service_impl.go
// transaction shape and original_source's ledger_service.py post_entry
// algorithm (reversal metadata shape).
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	ledgerdomain "github.com/smallbiznis/payroll-psp-core/internal/ledger/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/ledger/repository"
	obsmetrics "github.com/smallbiznis/payroll-psp-core/internal/observability/metrics"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Repo       *repository.Repository
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	repo       *repository.Repository
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		repo:       p.Repo,
		log:        p.Log.Named("ledger.service"),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) EnsureAccount(ctx context.Context, tx *gorm.DB, tenantID, legalEntityID uuid.UUID, accountType ledgerdomain.AccountType, currency string) (uuid.UUID, error) {
	return s.repo.EnsureAccount(tx.WithContext(ctx), tenantID, legalEntityID, accountType, currency)
}

func (s *Service) PostEntry(ctx context.Context, tx *gorm.DB, in ledgerdomain.PostEntryInput) (ledgerdomain.PostResult, error) {
	if err := in.Amount.Positive(); err != nil {
		return ledgerdomain.PostResult{}, ledgerdomain.ErrInvalidAmount
	}
	if in.DebitAccountID == in.CreditAccountID {
		return ledgerdomain.PostResult{}, ledgerdomain.ErrSameAccount
	}
	if in.IdempotencyKey == "" {
		return ledgerdomain.PostResult{}, fmt.Errorf("%w: idempotency_key is required", ledgerdomain.ErrInvalidAmount)
	}
	if in.PostedAt.IsZero() {
		in.PostedAt = time.Now().UTC()
	}
	if in.CorrelationID == uuid.Nil {
		return ledgerdomain.PostResult{}, fmt.Errorf("%w: correlation_id is required", ledgerdomain.ErrInvalidAmount)
	}

	entryID := idgen.NewID()
	tx = tx.WithContext(ctx)

	isNew, err := s.repo.InsertEntry(tx, entryID, in)
	if err != nil {
		return ledgerdomain.PostResult{}, err
	}
	if !isNew {
		existing, findErr := s.repo.FindByIdempotencyKey(tx, in.TenantID, in.IdempotencyKey)
		if findErr != nil {
			return ledgerdomain.PostResult{}, findErr
		}
		return ledgerdomain.PostResult{EntryID: existing.ID, IsNew: false}, nil
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(ctx, string(in.EntryType))
	}
	s.log.Debug("ledger entry posted",
		zap.String("entry_id", entryID.String()),
		zap.String("entry_type", string(in.EntryType)),
		zap.String("amount", in.Amount.String()),
	)
	return ledgerdomain.PostResult{EntryID: entryID, IsNew: true}, nil
}

func (s *Service) ReverseEntry(ctx context.Context, tx *gorm.DB, originalEntryID uuid.UUID, newIdempotencyKey, reason string) (ledgerdomain.PostResult, error) {
	tx = tx.WithContext(ctx)

	original, err := s.findOriginal(tx, originalEntryID)
	if err != nil {
		return ledgerdomain.PostResult{}, err
	}

	return s.PostEntry(ctx, tx, ledgerdomain.PostEntryInput{
		TenantID:        original.TenantID,
		LegalEntityID:   original.LegalEntityID,
		EntryType:       ledgerdomain.EntryReversal,
		DebitAccountID:  original.CreditAccountID,
		CreditAccountID: original.DebitAccountID,
		Amount:          original.Amount,
		SourceType:      original.SourceType,
		SourceID:        original.SourceID,
		CorrelationID:   original.CorrelationID,
		IdempotencyKey:  newIdempotencyKey,
		Metadata: map[string]any{
			"reason":        reason,
			"reverses":      original.ID.String(),
			"original_type": string(original.EntryType),
		},
	})
}

// findOriginal looks up an entry by id alone: the query carries no tenant
// filter, and no row-level-security scope (pkg/rls) is applied to tx, so
// the caller is responsible for passing an entry id it obtained under the
// right tenant.
func (s *Service) findOriginal(tx *gorm.DB, entryID uuid.UUID) (*ledgerRowWithTenant, error) {
	var row ledgerRowWithTenant
	if err := tx.Table("ledger_entry").Where("id = ?", entryID).Take(&row).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ledgerdomain.ErrEntryNotFound, err)
	}
	return &row, nil
}

type ledgerRowWithTenant struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	LegalEntityID   uuid.UUID
	EntryType       ledgerdomain.EntryType
	DebitAccountID  uuid.UUID
	CreditAccountID uuid.UUID
	Amount          money.Amount
	SourceType      string
	SourceID        uuid.UUID
	CorrelationID   uuid.UUID
}

func (s *Service) GetBalance(ctx context.Context, tx *gorm.DB, tenantID, legalEntityID, accountID uuid.UUID) (ledgerdomain.Balance, error) {
	tx = tx.WithContext(ctx)

	available, err := s.repo.AccountBalance(tx, tenantID, accountID)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	reserved, err := s.repo.ActiveReservationTotal(tx, tenantID, legalEntityID)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	return ledgerdomain.Balance{
		Available:  available,
		Reserved:   reserved,
		Unreserved: available.Sub(reserved),
	}, nil
}

func (s *Service) CreateReservation(ctx context.Context, tx *gorm.DB, in ledgerdomain.CreateReservationInput) (uuid.UUID, error) {
	if err := in.Amount.Positive(); err != nil {
		return uuid.Nil, ledgerdomain.ErrInvalidAmount
	}
	res := ledgerdomain.Reservation{
		ID:            idgen.NewID(),
		TenantID:      in.TenantID,
		LegalEntityID: in.LegalEntityID,
		ReserveType:   in.ReserveType,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Status:        ledgerdomain.ReservationActive,
		SourceType:    in.SourceType,
		SourceID:      in.SourceID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertReservation(tx.WithContext(ctx), res); err != nil {
		return uuid.Nil, err
	}
	return res.ID, nil
}

func (s *Service) ReleaseReservation(ctx context.Context, tx *gorm.DB, tenantID, reservationID uuid.UUID, consumed bool) (bool, error) {
	status := string(ledgerdomain.ReservationReleased)
	if consumed {
		status = string(ledgerdomain.ReservationConsumed)
	}
	ok, err := s.repo.ReleaseReservation(tx.WithContext(ctx), tenantID, reservationID, status)
	if err != nil {
		return false, err
	}
	if !ok {
		s.log.Debug("release reservation no-op: not found or not active",
			zap.String("reservation_id", reservationID.String()))
	}
	return ok, nil
}
