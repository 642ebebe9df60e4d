// Package service implements the Funding Gate (spec §4.2): required is
// computed from the caller-supplied pay-run snapshot per funding_model,
// available is read from the Ledger, and the decision is persisted once per
// (tenant, idempotency_key). Grounded in the donor's internal/config
// policy-holder pattern for the threshold/window knobs and
// original_source/src/payroll_engine/services/funding_service.py's
// required-by-model switch and spike check.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallbiznis/payroll-psp-core/internal/config"
	fundinggatedomain "github.com/smallbiznis/payroll-psp-core/internal/fundinggate/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/fundinggate/repository"
	ledgerdomain "github.com/smallbiznis/payroll-psp-core/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/payroll-psp-core/internal/observability/metrics"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const trailingWindowDefault = 6

type Params struct {
	fx.In

	Repo       *repository.Repository
	Ledger     ledgerdomain.Service
	Policy     *config.PolicyConfigHolder
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	repo       *repository.Repository
	ledger     ledgerdomain.Service
	policy     *config.PolicyConfigHolder
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) fundinggatedomain.Service {
	return &Service{
		repo:       p.Repo,
		ledger:     p.Ledger,
		policy:     p.Policy,
		log:        p.Log.Named("fundinggate.service"),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) EvaluateCommit(ctx context.Context, tx *gorm.DB, in fundinggatedomain.EvaluateInput) (fundinggatedomain.Decision, error) {
	return s.evaluate(ctx, tx, in, fundinggatedomain.GateCommit, in.Strict)
}

// EvaluatePay always evaluates strict and always subtracts reservations.
func (s *Service) EvaluatePay(ctx context.Context, tx *gorm.DB, in fundinggatedomain.EvaluateInput) (fundinggatedomain.Decision, error) {
	return s.evaluate(ctx, tx, in, fundinggatedomain.GatePay, true)
}

func (s *Service) evaluate(ctx context.Context, tx *gorm.DB, in fundinggatedomain.EvaluateInput, gateType fundinggatedomain.GateType, strict bool) (fundinggatedomain.Decision, error) {
	if in.IdempotencyKey == "" {
		return fundinggatedomain.Decision{}, fundinggatedomain.ErrMissingIdempotencyKey
	}
	tx = tx.WithContext(ctx)

	if existing, err := s.repo.FindByIdempotencyKey(tx, in.TenantID, in.IdempotencyKey); err == nil {
		return decisionFromEvaluation(*existing), nil
	}

	required, err := s.requiredAmount(in.PayRun, in.FundingModel)
	if err != nil {
		return fundinggatedomain.Decision{}, err
	}

	clearingAccountID, err := s.ledger.EnsureAccount(ctx, tx, in.TenantID, in.LegalEntityID, ledgerdomain.AccountClientFundingClearing, "USD")
	if err != nil {
		return fundinggatedomain.Decision{}, err
	}
	balance, err := s.ledger.GetBalance(ctx, tx, in.TenantID, in.LegalEntityID, clearingAccountID)
	if err != nil {
		return fundinggatedomain.Decision{}, err
	}
	available := balance.Available
	if gateType == fundinggatedomain.GatePay {
		available = balance.Unreserved
	}

	reasons, err := s.buildReasons(tx, in, required, available)
	if err != nil {
		return fundinggatedomain.Decision{}, err
	}

	outcome := deriveOutcome(gateType, strict, reasons)

	eval := fundinggatedomain.Evaluation{
		ID:             idgen.NewID(),
		TenantID:       in.TenantID,
		LegalEntityID:  in.LegalEntityID,
		PayRunID:       in.PayRun.PayRunID,
		GateType:       gateType,
		IdempotencyKey: in.IdempotencyKey,
		Outcome:        outcome,
		Required:       required,
		Available:      available,
		NetPay:         in.PayRun.NetPay,
		EvaluatedAt:    time.Now().UTC(),
	}
	isNew, err := s.repo.Insert(tx, eval, reasons)
	if err != nil {
		return fundinggatedomain.Decision{}, err
	}
	if !isNew {
		existing, findErr := s.repo.FindByIdempotencyKey(tx, in.TenantID, in.IdempotencyKey)
		if findErr != nil {
			return fundinggatedomain.Decision{}, findErr
		}
		return decisionFromEvaluation(*existing), nil
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordGateEvaluation(ctx, string(gateType), string(outcome))
	}
	s.log.Debug("funding gate evaluated",
		zap.String("gate_type", string(gateType)),
		zap.String("outcome", string(outcome)),
		zap.String("required", required.String()),
		zap.String("available", available.String()),
	)

	return fundinggatedomain.Decision{
		Outcome:   outcome,
		Required:  required,
		Available: available,
		Reasons:   reasons,
		IsNew:     true,
	}, nil
}

func (s *Service) requiredAmount(run fundinggatedomain.PayRunSnapshot, model fundinggatedomain.FundingModel) (money.Amount, error) {
	switch model {
	case fundinggatedomain.FundingModelPrefundAll:
		return run.NetPay.Add(run.EmployerTax).Add(run.ThirdPartyDeduction), nil
	case fundinggatedomain.FundingModelNetAndThirdParty:
		return run.NetPay.Add(run.ThirdPartyDeduction), nil
	case fundinggatedomain.FundingModelNetOnly:
		return run.NetPay, nil
	default:
		return money.Zero, fmt.Errorf("%w: %q", fundinggatedomain.ErrUnknownFundingModel, model)
	}
}

func (s *Service) buildReasons(tx *gorm.DB, in fundinggatedomain.EvaluateInput, required, available money.Amount) ([]fundinggatedomain.Reason, error) {
	var reasons []fundinggatedomain.Reason

	if available.LessThan(required) {
		shortfall := required.Sub(available).String()
		reasons = append(reasons, fundinggatedomain.Reason{
			Code:      fundinggatedomain.ReasonInsufficientFunds,
			Severity:  fundinggatedomain.SeverityBlocking,
			Shortfall: &shortfall,
		})
	}

	policy := s.policy.Current()
	window := policy.SpikeWindowRuns
	if window <= 0 {
		window = trailingWindowDefault
	}
	avgNet, sampleCount, err := s.repo.TrailingPaidNetAverage(tx, in.TenantID, in.LegalEntityID, window)
	if err != nil {
		return nil, err
	}
	if sampleCount > 0 && !avgNet.IsZero() {
		threshold := avgNet.MulFloat(policy.SpikeThresholdRatio)
		if in.PayRun.NetPay.GreaterThan(threshold) {
			reasons = append(reasons, fundinggatedomain.Reason{
				Code:     fundinggatedomain.ReasonSpikeDetected,
				Severity: fundinggatedomain.SeverityWarning,
				Detail:   fmt.Sprintf("net %s exceeds %.0f%% of trailing average %s over %d runs", in.PayRun.NetPay.String(), policy.SpikeThresholdRatio*100, avgNet.String(), sampleCount),
			})
		}
	}

	return reasons, nil
}

func deriveOutcome(gateType fundinggatedomain.GateType, strict bool, reasons []fundinggatedomain.Reason) fundinggatedomain.Outcome {
	if len(reasons) == 0 {
		return fundinggatedomain.OutcomePass
	}
	if gateType == fundinggatedomain.GatePay || strict {
		return fundinggatedomain.OutcomeHardFail
	}
	return fundinggatedomain.OutcomeSoftFail
}

func decisionFromEvaluation(eval fundinggatedomain.Evaluation) fundinggatedomain.Decision {
	var reasons []fundinggatedomain.Reason
	if len(eval.ReasonsJSON) > 0 {
		// A retried call must replay the exact reasons the first call
		// persisted (spec Testable Property #4); a malformed column is
		// treated as no reasons rather than failing the replay.
		_ = json.Unmarshal(eval.ReasonsJSON, &reasons)
	}
	return fundinggatedomain.Decision{
		Outcome:   eval.Outcome,
		Required:  eval.Required,
		Available: eval.Available,
		Reasons:   reasons,
		IsNew:     false,
	}
}
