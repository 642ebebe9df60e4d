// Package service implements the Facade (spec §4.8): the single entry point
// that sequences Funding Gate evaluation, reservation/instruction writes,
// ledger posting, Reconciliation, and Liability Attribution behind one
// correlation_id per call, emitting domain events in the order spec §5
// requires ("gate evaluation → reservation/instruction write → ledger post
// → event emission" — events reference ids the earlier steps produced),
// with one exception: CommitPayrollBatch emits FundingRequested before the
// commit gate runs, and that event carries only the batch's own ids.
// Grounded in original_source/src/payroll_engine/psp/services/facade.py's
// PSPFacade orchestration methods.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/internal/config"
	eventsdomain "github.com/smallbiznis/payroll-psp-core/internal/events/domain"
	fundinggatedomain "github.com/smallbiznis/payroll-psp-core/internal/fundinggate/domain"
	ledgerdomain "github.com/smallbiznis/payroll-psp-core/internal/ledger/domain"
	liabilitydomain "github.com/smallbiznis/payroll-psp-core/internal/liability/domain"
	obsmetrics "github.com/smallbiznis/payroll-psp-core/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/payroll-psp-core/internal/payment/repository"
	pspdomain "github.com/smallbiznis/payroll-psp-core/internal/psp/domain"
	reconciliationdomain "github.com/smallbiznis/payroll-psp-core/internal/reconciliation/domain"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Gate        fundinggatedomain.Service
	Ledger      ledgerdomain.Service
	Payment     paymentdomain.Service
	PaymentRepo *paymentrepository.Repository
	Reconciler  reconciliationdomain.Service
	Liability   liabilitydomain.Service
	Events      eventsdomain.Service
	Policy      *config.PolicyConfigHolder
	Log         *zap.Logger
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	gate        fundinggatedomain.Service
	ledger      ledgerdomain.Service
	payment     paymentdomain.Service
	paymentRepo *paymentrepository.Repository
	reconciler  reconciliationdomain.Service
	liability   liabilitydomain.Service
	events      eventsdomain.Service
	policy      *config.PolicyConfigHolder
	log         *zap.Logger
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) pspdomain.Service {
	return &Service{
		gate:        p.Gate,
		ledger:      p.Ledger,
		payment:     p.Payment,
		paymentRepo: p.PaymentRepo,
		reconciler:  p.Reconciler,
		liability:   p.Liability,
		events:      p.Events,
		policy:      p.Policy,
		log:         p.Log.Named("psp.service"),
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) CommitPayrollBatch(ctx context.Context, tx *gorm.DB, batch pspdomain.PayrollBatch) (pspdomain.CommitResult, error) {
	tx = tx.WithContext(ctx)
	if len(batch.Items) == 0 {
		return pspdomain.CommitResult{}, pspdomain.ErrEmptyBatch
	}
	correlationID := idgen.NewID()
	currency := batch.Items[0].Currency

	total := money.Zero
	snapshot := fundinggatedomain.PayRunSnapshot{PayRunID: batch.PayRunID}
	for _, item := range batch.Items {
		total = total.Add(item.Amount)
		switch item.Purpose {
		case paymentdomain.PurposeEmployeeNet:
			snapshot.NetPay = snapshot.NetPay.Add(item.Amount)
		case paymentdomain.PurposeTaxRemit:
			snapshot.EmployerTax = snapshot.EmployerTax.Add(item.Amount)
		case paymentdomain.PurposeThirdParty:
			snapshot.ThirdPartyDeduction = snapshot.ThirdPartyDeduction.Add(item.Amount)
		}
	}

	if err := s.emit(ctx, tx, eventsdomain.TypeFundingRequested, eventsdomain.CategoryFunding, batch.TenantID, correlationID, nil, map[string]any{
		"funding_request_id": correlationID.String(),
		"legal_entity_id":    batch.LegalEntityID.String(),
		"pay_run_id":         batch.PayRunID.String(),
		"requested_amount":   total.String(),
		"currency":           currency,
	}); err != nil {
		return pspdomain.CommitResult{}, err
	}

	policy := s.policy.Current()
	fundingModel := batch.FundingModel
	if fundingModel == "" {
		fundingModel = fundinggatedomain.FundingModel(policy.FundingModel)
	}

	decision, err := s.gate.EvaluateCommit(ctx, tx, fundinggatedomain.EvaluateInput{
		TenantID:       batch.TenantID,
		LegalEntityID:  batch.LegalEntityID,
		PayRun:         snapshot,
		FundingModel:   fundingModel,
		IdempotencyKey: batch.IdempotencyKey,
		Strict:         policy.CommitGateStrict,
	})
	if err != nil {
		return pspdomain.CommitResult{}, err
	}

	hasInsufficientFunds := false
	for _, r := range decision.Reasons {
		if r.Code == fundinggatedomain.ReasonInsufficientFunds {
			hasInsufficientFunds = true
		}
	}

	if decision.Outcome == fundinggatedomain.OutcomeHardFail {
		status := pspdomain.CommitBlockedPolicy
		eventType := eventsdomain.TypeFundingBlocked
		if hasInsufficientFunds {
			status = pspdomain.CommitBlockedFunds
			eventType = eventsdomain.TypeFundingInsufficientFunds
		}
		reason := reasonSummary(decision.Reasons)
		if err := s.emit(ctx, tx, eventType, eventsdomain.CategoryFunding, batch.TenantID, correlationID, nil, map[string]any{
			"legal_entity_id": batch.LegalEntityID.String(),
			"pay_run_id":      batch.PayRunID.String(),
			"required":        decision.Required.String(),
			"available":       decision.Available.String(),
			"reason":          reason,
		}); err != nil {
			return pspdomain.CommitResult{}, err
		}
		return pspdomain.CommitResult{
			Status:        status,
			Total:         total,
			BlockedCount:  len(batch.Items),
			Reason:        reason,
			CorrelationID: correlationID,
		}, nil
	}

	reservationID, err := s.ledger.CreateReservation(ctx, tx, ledgerdomain.CreateReservationInput{
		TenantID:      batch.TenantID,
		LegalEntityID: batch.LegalEntityID,
		ReserveType:   ledgerdomain.ReserveNetPay,
		Amount:        decision.Required,
		Currency:      currency,
		SourceType:    "payroll_batch",
		SourceID:      batch.PayRunID,
	})
	if err != nil {
		return pspdomain.CommitResult{}, err
	}

	expiresAt := time.Now().UTC().Add(time.Duration(policy.ReservationTTLHours) * time.Hour)
	if err := s.emit(ctx, tx, eventsdomain.TypeFundingApproved, eventsdomain.CategoryFunding, batch.TenantID, correlationID, nil, map[string]any{
		"reservation_id": reservationID.String(),
		"expires_at":      expiresAt,
	}); err != nil {
		return pspdomain.CommitResult{}, err
	}

	return pspdomain.CommitResult{
		Status:        pspdomain.CommitApproved,
		ReservationID: &reservationID,
		Total:         total,
		ApprovedCount: len(batch.Items),
		Reason:        reasonSummary(decision.Reasons),
		CorrelationID: correlationID,
	}, nil
}

func (s *Service) ExecutePayments(ctx context.Context, tx *gorm.DB, in pspdomain.ExecuteInput) (pspdomain.ExecuteResult, error) {
	tx = tx.WithContext(ctx)
	correlationID := idgen.NewID()

	policy := s.policy.Current()
	if policy.PayGateAlwaysEnforce {
		snapshot := fundinggatedomain.PayRunSnapshot{PayRunID: in.PayRunID}
		for _, item := range in.Items {
			switch item.Purpose {
			case paymentdomain.PurposeEmployeeNet:
				snapshot.NetPay = snapshot.NetPay.Add(item.Amount)
			case paymentdomain.PurposeTaxRemit:
				snapshot.EmployerTax = snapshot.EmployerTax.Add(item.Amount)
			case paymentdomain.PurposeThirdParty:
				snapshot.ThirdPartyDeduction = snapshot.ThirdPartyDeduction.Add(item.Amount)
			}
		}
		decision, err := s.gate.EvaluatePay(ctx, tx, fundinggatedomain.EvaluateInput{
			TenantID:       in.TenantID,
			LegalEntityID:  in.LegalEntityID,
			PayRun:         snapshot,
			FundingModel:   fundinggatedomain.FundingModel(policy.FundingModel),
			IdempotencyKey: in.IdempotencyKey,
		})
		if err != nil {
			return pspdomain.ExecuteResult{}, err
		}
		if decision.Outcome != fundinggatedomain.OutcomePass {
			return pspdomain.ExecuteResult{
				CorrelationID: correlationID,
				Status:        "blocked",
				Reason:        reasonSummary(decision.Reasons),
			}, nil
		}
	}

	results := make([]pspdomain.ItemResult, 0, len(in.Items))
	allSucceeded := true
	for _, item := range in.Items {
		created, err := s.payment.CreateInstruction(ctx, tx, paymentdomain.CreateInstructionInput{
			TenantID:                in.TenantID,
			LegalEntityID:           in.LegalEntityID,
			Purpose:                 item.Purpose,
			Direction:               paymentdomain.DirectionOutbound,
			Amount:                  item.Amount,
			Currency:                item.Currency,
			PayeeType:               item.PayeeType,
			PayeeRefID:              item.PayeeRefID,
			RequestedSettlementDate: item.RequestedSettlementDate,
			IdempotencyKey:          item.IdempotencyKey,
			SourceType:              "payroll_batch",
			SourceID:                in.PayRunID,
		})
		if err != nil {
			return pspdomain.ExecuteResult{}, err
		}

		if created.WasDuplicate {
			// A duplicate create (same idempotency_key) is never resubmitted
			// (spec §4.8 scenario S4); only a genuinely failed prior attempt
			// counts against allSucceeded.
			succeeded := created.Status != paymentdomain.StatusFailed
			if !succeeded {
				allSucceeded = false
			}
			results = append(results, pspdomain.ItemResult{
				InstructionID: created.InstructionID,
				WasDuplicate:  true,
				Status:        created.Status,
				Accepted:      succeeded,
			})
			continue
		}

		if err := s.emit(ctx, tx, eventsdomain.TypePaymentInstructionCreated, eventsdomain.CategoryPayment, in.TenantID, correlationID, nil, map[string]any{
			"instruction_id": created.InstructionID.String(),
			"purpose":        string(item.Purpose),
			"amount":         item.Amount.String(),
		}); err != nil {
			return pspdomain.ExecuteResult{}, err
		}

		railOverride := ""
		if in.Rail != nil {
			railOverride = *in.Rail
		}
		submitResult, err := s.payment.Submit(ctx, tx, in.TenantID, created.InstructionID, railOverride)
		if err != nil {
			return pspdomain.ExecuteResult{}, err
		}

		eventType := eventsdomain.TypePaymentSubmitted
		if !submitResult.Accepted {
			eventType = eventsdomain.TypePaymentFailed
			allSucceeded = false
		}
		if err := s.emit(ctx, tx, eventType, eventsdomain.CategoryPayment, in.TenantID, correlationID, nil, map[string]any{
			"instruction_id":      created.InstructionID.String(),
			"provider_request_id": submitResult.ProviderRequestID,
			"message":             submitResult.Message,
		}); err != nil {
			return pspdomain.ExecuteResult{}, err
		}

		status := paymentdomain.StatusFailed
		if submitResult.Accepted {
			status = paymentdomain.StatusSubmitted
		}
		results = append(results, pspdomain.ItemResult{
			InstructionID: created.InstructionID,
			Status:        status,
			Accepted:      submitResult.Accepted,
			Message:       submitResult.Message,
		})
	}

	reservationConsumed := false
	if allSucceeded && in.ReservationID != nil {
		consumed, err := s.ledger.ReleaseReservation(ctx, tx, in.TenantID, *in.ReservationID, true)
		if err != nil {
			return pspdomain.ExecuteResult{}, err
		}
		reservationConsumed = consumed
	}

	return pspdomain.ExecuteResult{
		CorrelationID:       correlationID,
		Items:               results,
		ReservationConsumed: reservationConsumed,
		Status:              "submitted",
	}, nil
}

func (s *Service) IngestSettlementFeed(ctx context.Context, tx *gorm.DB, in pspdomain.IngestInput) (pspdomain.IngestResult, error) {
	tx = tx.WithContext(ctx)
	correlationID := idgen.NewID()
	tenantID := uuid.Nil
	if in.TenantID != nil {
		tenantID = *in.TenantID
	}

	if err := s.emit(ctx, tx, eventsdomain.TypeReconciliationStarted, eventsdomain.CategoryReconciliation, tenantID, correlationID, nil, map[string]any{
		"bank_account_id": in.BankAccountID.String(),
		"rail":            in.Rail,
		"record_count":    len(in.Records),
	}); err != nil {
		return pspdomain.IngestResult{}, err
	}

	for _, record := range in.Records {
		if err := s.emit(ctx, tx, eventsdomain.TypeSettlementReceived, eventsdomain.CategorySettlement, tenantID, correlationID, nil, map[string]any{
			"external_trace_id": record.ExternalTraceID,
			"rail":              in.Rail,
			"amount":            record.Amount.String(),
			"status":            record.Status,
		}); err != nil {
			return pspdomain.IngestResult{}, err
		}
	}

	result, err := s.reconciler.ProcessRecords(ctx, tx, in.BankAccountID, in.Rail, in.Records)
	if err != nil {
		return pspdomain.IngestResult{}, err
	}

	if err := s.emit(ctx, tx, eventsdomain.TypeReconciliationCompleted, eventsdomain.CategoryReconciliation, tenantID, correlationID, nil, map[string]any{
		"processed": result.Processed,
		"matched":   result.Matched,
		"created":   result.Created,
		"failed":    result.Failed,
	}); err != nil {
		return pspdomain.IngestResult{}, err
	}

	return pspdomain.IngestResult{
		CorrelationID: correlationID,
		Processed:     result.Processed,
		Matched:       result.Matched,
		Created:       result.Created,
		Failed:        result.Failed,
		Errors:        result.Errors,
	}, nil
}

func (s *Service) HandleProviderCallback(ctx context.Context, tx *gorm.DB, in pspdomain.CallbackInput) (pspdomain.CallbackResult, error) {
	tx = tx.WithContext(ctx)
	correlationID := idgen.NewID()

	desiredStatus, ok := callbackStatusFor(in.CallbackType)
	if !ok {
		return pspdomain.CallbackResult{Status: pspdomain.CallbackInvalid, CorrelationID: correlationID}, nil
	}

	attempt, err := s.paymentRepo.FindAttemptByProviderRequestID(tx, in.Rail, in.ProviderRequestID)
	if err != nil {
		return pspdomain.CallbackResult{Status: pspdomain.CallbackUnknown, CorrelationID: correlationID}, nil
	}
	instruction, err := s.paymentRepo.FindByIDAny(tx, attempt.InstructionID)
	if err != nil {
		return pspdomain.CallbackResult{Status: pspdomain.CallbackUnknown, CorrelationID: correlationID}, nil
	}

	if instruction.Status == desiredStatus || !paymentdomain.CanTransition(instruction.Status, desiredStatus) {
		return pspdomain.CallbackResult{
			Status:        pspdomain.CallbackDuplicate,
			InstructionID: &instruction.ID,
			CorrelationID: correlationID,
		}, nil
	}

	if err := s.payment.UpdateStatus(ctx, tx, instruction.TenantID, instruction.ID, desiredStatus); err != nil {
		return pspdomain.CallbackResult{}, err
	}

	if desiredStatus == paymentdomain.StatusReversed {
		classification, err := s.liability.ClassifyReturn(ctx, tx, in.Rail, in.ReturnCode, instruction.Amount, in.Context)
		if err != nil {
			return pspdomain.CallbackResult{}, err
		}
		recorded, err := s.liability.RecordLiabilityEvent(ctx, tx, liabilitydomain.RecordEventInput{
			TenantID:       instruction.TenantID,
			LegalEntityID:  instruction.LegalEntityID,
			SourceType:     "payment_instruction",
			SourceID:       instruction.ID,
			Classification: classification,
			Evidence:       in.Evidence,
			IdempotencyKey: fmt.Sprintf("callback_%s", instruction.ID),
		})
		if err != nil {
			return pspdomain.CallbackResult{}, err
		}

		if err := s.emit(ctx, tx, eventsdomain.TypePaymentReturned, eventsdomain.CategoryPayment, instruction.TenantID, correlationID, nil, map[string]any{
			"instruction_id": instruction.ID.String(),
			"return_code":    in.ReturnCode,
		}); err != nil {
			return pspdomain.CallbackResult{}, err
		}
		if err := s.emit(ctx, tx, eventsdomain.TypeLiabilityClassified, eventsdomain.CategoryLiability, instruction.TenantID, correlationID, nil, map[string]any{
			"liability_event_id": recorded.EventID.String(),
			"error_origin":       string(classification.ErrorOrigin),
			"liability_party":    string(classification.LiabilityParty),
			"recovery_path":      string(classification.RecoveryPath),
		}); err != nil {
			return pspdomain.CallbackResult{}, err
		}

		return pspdomain.CallbackResult{
			Status:           pspdomain.CallbackProcessed,
			InstructionID:    &instruction.ID,
			LiabilityEventID: &recorded.EventID,
			CorrelationID:    correlationID,
		}, nil
	}

	if err := s.emit(ctx, tx, eventsdomain.TypePaymentSettled, eventsdomain.CategoryPayment, instruction.TenantID, correlationID, nil, map[string]any{
		"instruction_id": instruction.ID.String(),
	}); err != nil {
		return pspdomain.CallbackResult{}, err
	}

	return pspdomain.CallbackResult{
		Status:        pspdomain.CallbackProcessed,
		InstructionID: &instruction.ID,
		CorrelationID: correlationID,
	}, nil
}

func callbackStatusFor(callbackType string) (paymentdomain.Status, bool) {
	switch callbackType {
	case "return", "returned":
		return paymentdomain.StatusReversed, true
	case "settlement", "settled":
		return paymentdomain.StatusSettled, true
	default:
		return "", false
	}
}

func reasonSummary(reasons []fundinggatedomain.Reason) string {
	if len(reasons) == 0 {
		return ""
	}
	out := string(reasons[0].Code)
	if reasons[0].Shortfall != nil {
		out = fmt.Sprintf("%s shortfall %s", out, *reasons[0].Shortfall)
	} else if reasons[0].Detail != "" {
		out = fmt.Sprintf("%s: %s", out, reasons[0].Detail)
	}
	return out
}

// emit honors policy.emit_events: when disabled, events are skipped
// entirely rather than appended and immediately discarded.
func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType string, category eventsdomain.Category, tenantID, correlationID uuid.UUID, causationID *uuid.UUID, payload map[string]any) error {
	if !s.policy.Current().EmitEvents {
		return nil
	}
	_, err := s.events.Append(ctx, tx, eventsdomain.NewEvent{
		EventType:     eventType,
		Category:      category,
		TenantID:      tenantID,
		CorrelationID: correlationID,
		CausationID:   causationID,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
		Version:       1,
	})
	return err
}
