// Package service implements Liability Attribution (spec §4.5):
// classifyReturn is a pure function over a seeded return-code reference plus
// context overrides; recordLiabilityEvent is an idempotent insert;
// updateRecoveryStatus advances the recovery lifecycle and stamps
// resolved_at on terminal statuses. Grounded in
// original_source/src/payroll_engine/psp/services/liability.py's
// LiabilityService.classify_return/record_liability_event/update_recovery_status.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	liabilitydomain "github.com/smallbiznis/payroll-psp-core/internal/liability/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/liability/repository"
	obsmetrics "github.com/smallbiznis/payroll-psp-core/internal/observability/metrics"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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

func NewService(p Params) liabilitydomain.Service {
	return &Service{
		repo:       p.Repo,
		log:        p.Log.Named("liability.service"),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ClassifyReturn(ctx context.Context, tx *gorm.DB, rail, returnCode string, amount money.Amount, cctx *liabilitydomain.ClassifyContext) (liabilitydomain.Classification, error) {
	tx = tx.WithContext(ctx)

	var (
		errorOrigin   liabilitydomain.ErrorOrigin
		party         liabilitydomain.LiabilityParty
		isRecoverable bool
		reason        string
	)

	ref, err := s.repo.FindReturnCode(tx, rail, returnCode)
	switch {
	case err == nil:
		errorOrigin = ref.DefaultErrorOrigin
		party = ref.DefaultParty
		isRecoverable = ref.IsRecoverable
		reason = fmt.Sprintf("Return code %s: %s", returnCode, ref.Description)
	default:
		// Unknown code — default to pending investigation (spec §4.5).
		errorOrigin = liabilitydomain.ErrorOriginRecipient
		party = liabilitydomain.PartyPending
		isRecoverable = false
		reason = fmt.Sprintf("Unknown return code %s - requires investigation", returnCode)
	}

	if cctx != nil {
		if cctx.RepeatFailureCount >= 3 {
			party = liabilitydomain.PartyEmployer
			reason += " (repeated failures - employer must update payment info)"
		}
		if cctx.OurDataError {
			errorOrigin = liabilitydomain.ErrorOriginPayrollEngine
			party = liabilitydomain.PartyPSP
			reason = "PSP data handling error: " + cctx.ErrorDetail
		}
	}

	var recoveryPath liabilitydomain.RecoveryPath
	switch {
	case party == liabilitydomain.PartyEmployer && isRecoverable:
		recoveryPath = liabilitydomain.RecoveryOffsetFuture
	case party == liabilitydomain.PartyPSP:
		recoveryPath = liabilitydomain.RecoveryWriteOff
	case party == liabilitydomain.PartyPending:
		recoveryPath = liabilitydomain.RecoveryDispute
	default:
		recoveryPath = liabilitydomain.RecoveryNone
	}

	return liabilitydomain.Classification{
		ErrorOrigin:         errorOrigin,
		LiabilityParty:      party,
		RecoveryPath:        recoveryPath,
		LossAmount:          amount,
		DeterminationReason: reason,
		IsRecoverable:       isRecoverable,
		Confidence:          "high",
	}, nil
}

func (s *Service) RecordLiabilityEvent(ctx context.Context, tx *gorm.DB, in liabilitydomain.RecordEventInput) (liabilitydomain.RecordResult, error) {
	tx = tx.WithContext(ctx)

	evidencePayload := in.Evidence
	if evidencePayload == nil {
		evidencePayload = map[string]any{}
	}
	evidence, err := json.Marshal(evidencePayload)
	if err != nil {
		return liabilitydomain.RecordResult{}, err
	}

	id := idgen.NewID()
	row := liabilitydomain.Event{
		ID:                  id,
		TenantID:            in.TenantID,
		LegalEntityID:       in.LegalEntityID,
		SourceType:          in.SourceType,
		SourceID:            in.SourceID,
		ErrorOrigin:         in.Classification.ErrorOrigin,
		LiabilityParty:      in.Classification.LiabilityParty,
		LossAmount:          in.Classification.LossAmount,
		RecoveryPath:        in.Classification.RecoveryPath,
		RecoveryStatus:      liabilitydomain.RecoveryPending,
		DeterminationReason: in.Classification.DeterminationReason,
		Evidence:            datatypes.JSON(evidence),
		IdempotencyKey:      in.IdempotencyKey,
		CreatedAt:           time.Now().UTC(),
	}

	isNew, err := s.repo.Insert(tx, row)
	if err != nil {
		return liabilitydomain.RecordResult{}, err
	}
	if !isNew {
		existing, findErr := s.repo.FindByIdempotencyKey(tx, in.TenantID, in.IdempotencyKey)
		if findErr != nil {
			return liabilitydomain.RecordResult{}, findErr
		}
		return liabilitydomain.RecordResult{EventID: existing.ID, IsNew: false}, nil
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordLiabilityEvent(ctx, string(in.Classification.LiabilityParty))
	}
	s.log.Info("liability event recorded",
		zap.String("event_id", id.String()),
		zap.String("liability_party", string(in.Classification.LiabilityParty)),
		zap.String("recovery_path", string(in.Classification.RecoveryPath)),
	)
	return liabilitydomain.RecordResult{EventID: id, IsNew: true}, nil
}

func (s *Service) UpdateRecoveryStatus(ctx context.Context, tx *gorm.DB, tenantID, eventID uuid.UUID, newStatus liabilitydomain.RecoveryStatus, recoveryAmount *money.Amount) (bool, error) {
	tx = tx.WithContext(ctx)

	var amountStr *string
	if recoveryAmount != nil {
		s := recoveryAmount.String()
		amountStr = &s
	}

	ok, err := s.repo.UpdateRecoveryStatus(tx, tenantID, eventID, newStatus, amountStr, newStatus.IsTerminal())
	if err != nil {
		return false, err
	}
	if ok {
		s.log.Debug("liability recovery status advanced",
			zap.String("event_id", eventID.String()),
			zap.String("status", string(newStatus)),
		)
	}
	return ok, nil
}
