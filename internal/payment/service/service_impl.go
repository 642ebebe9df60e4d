// Package service implements the Payment Orchestrator (spec §4.3):
// idempotent instruction creation, rail selection by capability preference,
// idempotent attempt recording, and the companion ledger posting for
// employee_net instructions. Grounded in the donor's
// internal/payment/service/service_impl.go insert/load-on-conflict idiom and
// internal/ledger/service/service_impl.go transaction shape.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	ledgerdomain "github.com/smallbiznis/payroll-psp-core/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/payroll-psp-core/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers"
	providerdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/providers/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/repository"
	"github.com/smallbiznis/payroll-psp-core/internal/ratelimit"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// submitGuardTTL bounds how long a submit guard key survives a crashed
// in-flight call before another retry is allowed to try the rail itself.
const submitGuardTTL = 30 * time.Second

type Params struct {
	fx.In

	Repo       *repository.Repository
	Ledger     ledgerdomain.Service
	Registry   *providers.Registry
	Guard      *ratelimit.SubmitGuard `optional:"true"`
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	repo       *repository.Repository
	ledger     ledgerdomain.Service
	registry   *providers.Registry
	guard      *ratelimit.SubmitGuard
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		repo:       p.Repo,
		ledger:     p.Ledger,
		registry:   p.Registry,
		guard:      p.Guard,
		log:        p.Log.Named("payment.service"),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateInstruction(ctx context.Context, tx *gorm.DB, in paymentdomain.CreateInstructionInput) (paymentdomain.CreateResult, error) {
	if err := in.Amount.Positive(); err != nil {
		return paymentdomain.CreateResult{}, paymentdomain.ErrInvalidAmount
	}
	if in.IdempotencyKey == "" {
		return paymentdomain.CreateResult{}, paymentdomain.ErrMissingIdempotencyKey
	}
	tx = tx.WithContext(ctx)

	id := idgen.NewID()
	isNew, err := s.repo.InsertInstruction(tx, id, in)
	if err != nil {
		return paymentdomain.CreateResult{}, err
	}
	if !isNew {
		existing, findErr := s.repo.FindByIdempotencyKey(tx, in.TenantID, in.IdempotencyKey)
		if findErr != nil {
			return paymentdomain.CreateResult{}, findErr
		}
		return paymentdomain.CreateResult{InstructionID: existing.ID, WasDuplicate: true, Status: existing.Status}, nil
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordInstructionCreated(ctx, string(in.Purpose))
	}
	return paymentdomain.CreateResult{InstructionID: id, WasDuplicate: false, Status: paymentdomain.StatusCreated}, nil
}

func (s *Service) Submit(ctx context.Context, tx *gorm.DB, tenantID, instructionID uuid.UUID, railOverride string) (paymentdomain.SubmitResult, error) {
	tx = tx.WithContext(ctx)

	instruction, err := s.repo.FindByID(tx, tenantID, instructionID)
	if err != nil {
		return paymentdomain.SubmitResult{}, fmt.Errorf("%w: %v", paymentdomain.ErrInstructionNotFound, err)
	}
	if instruction.Status != paymentdomain.StatusCreated && instruction.Status != paymentdomain.StatusQueued {
		return paymentdomain.SubmitResult{}, paymentdomain.ErrNotSubmittable
	}

	rail, err := s.registry.SelectRail(railOverride)
	if err != nil {
		return paymentdomain.SubmitResult{}, err
	}

	payload := providerdomain.SubmitPayload{
		InstructionID:  instruction.ID,
		Amount:         instruction.Amount,
		Currency:       instruction.Currency,
		IdempotencyKey: instruction.IdempotencyKey,
		Purpose:        string(instruction.Purpose),
		PayeeType:      instruction.PayeeType,
		PayeeRefID:     instruction.PayeeRefID,
		Direction:      string(instruction.Direction),
	}
	if instruction.Purpose == paymentdomain.PurposeThirdParty {
		if payee, err := s.repo.FindThirdPartyPayee(tx, tenantID, instruction.LegalEntityID, instruction.PayeeRefID); err == nil {
			payload.Metadata = map[string]any{"payee_display_name": payee.DisplayName}
		}
	}

	token, acquired, guardErr := s.guard.TryAcquire(ctx, instruction.IdempotencyKey, submitGuardTTL)
	if guardErr != nil {
		return paymentdomain.SubmitResult{}, fmt.Errorf("submit guard: %w", guardErr)
	}
	if !acquired {
		return paymentdomain.SubmitResult{}, paymentdomain.ErrSubmitInFlight
	}
	defer func() { _ = s.guard.Release(ctx, instruction.IdempotencyKey, token) }()

	result, submitErr := rail.Submit(ctx, payload)
	if submitErr != nil {
		result = providerdomain.SubmitResult{Accepted: false, Message: submitErr.Error()}
	}

	providerRequestID := result.ProviderRequestID
	if providerRequestID == "" {
		providerRequestID = "local:" + instruction.IdempotencyKey
	}
	attemptStatus := paymentdomain.AttemptFailed
	if result.Accepted {
		attemptStatus = paymentdomain.AttemptAccepted
	}

	attemptID := idgen.NewID()
	isNewAttempt, err := s.repo.InsertAttempt(tx, attemptID, instruction.ID, rail.Name(), rail.Name(), providerRequestID, string(attemptStatus), nil)
	if err != nil {
		return paymentdomain.SubmitResult{}, err
	}
	if !isNewAttempt {
		existing, findErr := s.repo.FindAttemptByProviderRequestID(tx, rail.Name(), providerRequestID)
		if findErr != nil {
			return paymentdomain.SubmitResult{}, findErr
		}
		attemptID = existing.ID
	}

	nextStatus := paymentdomain.StatusFailed
	if result.Accepted {
		nextStatus = paymentdomain.StatusSubmitted
	}
	if isNewAttempt {
		if _, err := s.repo.UpdateStatus(tx, tenantID, instruction.ID, string(instruction.Status), string(nextStatus)); err != nil {
			return paymentdomain.SubmitResult{}, err
		}

		if result.Accepted {
			if entryType, applies := paymentdomain.CompanionLedgerEntryType(instruction.Purpose); applies {
				netPayPayable, err := s.ledger.EnsureAccount(ctx, tx, tenantID, instruction.LegalEntityID, ledgerdomain.AccountClientNetPayPayable, instruction.Currency)
				if err != nil {
					return paymentdomain.SubmitResult{}, err
				}
				settlementClearing, err := s.ledger.EnsureAccount(ctx, tx, tenantID, instruction.LegalEntityID, ledgerdomain.AccountPSPSettlementClearing, instruction.Currency)
				if err != nil {
					return paymentdomain.SubmitResult{}, err
				}
				_, err = s.ledger.PostEntry(ctx, tx, ledgerdomain.PostEntryInput{
					TenantID:        tenantID,
					LegalEntityID:   instruction.LegalEntityID,
					EntryType:       ledgerdomain.EntryType(entryType),
					DebitAccountID:  netPayPayable,
					CreditAccountID: settlementClearing,
					Amount:          instruction.Amount,
					SourceType:      "payment_instruction",
					SourceID:        instruction.ID,
					CorrelationID:   instruction.ID,
					IdempotencyKey:  fmt.Sprintf("payment_init_%s", instruction.ID),
					PostedAt:        time.Now().UTC(),
				})
				if err != nil {
					return paymentdomain.SubmitResult{}, err
				}
			}
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordInstructionCreated(ctx, "submit:"+string(nextStatus))
		}
	}

	return paymentdomain.SubmitResult{
		AttemptID:         attemptID,
		ProviderRequestID: providerRequestID,
		Accepted:          result.Accepted,
		Message:           result.Message,
	}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, tx *gorm.DB, tenantID, instructionID uuid.UUID, newStatus paymentdomain.Status) error {
	tx = tx.WithContext(ctx)
	instruction, err := s.repo.FindByID(tx, tenantID, instructionID)
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrInstructionNotFound, err)
	}
	if !paymentdomain.CanTransition(instruction.Status, newStatus) {
		return fmt.Errorf("%w: %s -> %s", paymentdomain.ErrIllegalTransition, instruction.Status, newStatus)
	}
	ok, err := s.repo.UpdateStatus(tx, tenantID, instructionID, string(instruction.Status), string(newStatus))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: concurrent status change for instruction %s", paymentdomain.ErrIllegalTransition, instructionID)
	}
	s.log.Debug("instruction status advanced",
		zap.String("instruction_id", instructionID.String()),
		zap.String("from", string(instruction.Status)),
		zap.String("to", string(newStatus)),
	)
	return nil
}
