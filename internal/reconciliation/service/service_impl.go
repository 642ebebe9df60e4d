// Package service implements Reconciliation (spec §4.4): pulls settlement
// records from a rail provider, ingests them idempotently by
// (bank_account, external_trace_id), and matches them to payment attempts to
// advance instruction status and post the settled/reversal ledger entries.
// Grounded in the donor's internal/payment/service/service_impl.go
// insert-then-load-on-conflict idiom, generalized from payment-event
// ingestion to settlement-event ingestion.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	ledgerdomain "github.com/smallbiznis/payroll-psp-core/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/payroll-psp-core/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers"
	providerdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/providers/domain"
	paymentrepository "github.com/smallbiznis/payroll-psp-core/internal/payment/repository"
	reconciliationdomain "github.com/smallbiznis/payroll-psp-core/internal/reconciliation/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/reconciliation/repository"
	"github.com/smallbiznis/payroll-psp-core/pkg/db/pagination"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Repo        *repository.Repository
	PaymentRepo *paymentrepository.Repository
	Payment     paymentdomain.Service
	Ledger      ledgerdomain.Service
	Registry    *providers.Registry
	Log         *zap.Logger
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	repo        *repository.Repository
	paymentRepo *paymentrepository.Repository
	payment     paymentdomain.Service
	ledger      ledgerdomain.Service
	registry    *providers.Registry
	log         *zap.Logger
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) reconciliationdomain.Service {
	return &Service{
		repo:        p.Repo,
		paymentRepo: p.PaymentRepo,
		payment:     p.Payment,
		ledger:      p.Ledger,
		registry:    p.Registry,
		log:         p.Log.Named("reconciliation.service"),
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Run(ctx context.Context, tx *gorm.DB, date time.Time, tenantID *uuid.UUID, bankAccountID uuid.UUID, rail string) (reconciliationdomain.Result, error) {
	tx = tx.WithContext(ctx)

	provider, err := s.registry.ByName(rail)
	if err != nil {
		return reconciliationdomain.Result{}, err
	}
	records, err := provider.Reconcile(ctx, date)
	if err != nil {
		return reconciliationdomain.Result{Errors: []string{err.Error()}}, nil
	}

	return s.ProcessRecords(ctx, tx, bankAccountID, rail, records)
}

// ProcessRecords ingests an already-fetched batch of settlement records
// (e.g. handed to the facade directly rather than pulled from a provider by
// date), applying the same idempotent matching/posting logic as Run.
func (s *Service) ProcessRecords(ctx context.Context, tx *gorm.DB, bankAccountID uuid.UUID, rail string, records []providerdomain.SettlementRecord) (reconciliationdomain.Result, error) {
	tx = tx.WithContext(ctx)

	var result reconciliationdomain.Result
	for _, record := range records {
		result.Processed++
		created, err := s.processRecord(ctx, tx, bankAccountID, rail, record)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", record.ExternalTraceID, err))
			if s.obsMetrics != nil {
				s.obsMetrics.RecordReconciliationError(ctx)
			}
			continue
		}
		result.Matched++
		if created {
			result.Created++
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordReconciliationRecord(ctx, rail)
		}
	}
	return result, nil
}

// ListUnmatched is the operator-facing view named in spec §4.4's
// per-component notes: settlement events a rail confirmed but this core
// never linked to a ledger entry. Pages newest-first via the donor's
// audit-log keyset-cursor idiom.
func (s *Service) ListUnmatched(ctx context.Context, tx *gorm.DB, filter reconciliationdomain.UnmatchedFilter) ([]*reconciliationdomain.SettlementEvent, pagination.PageInfo, error) {
	tx = tx.WithContext(ctx)

	limit := filter.PageSize
	if limit <= 0 {
		limit = 50
	}

	var cursor *pagination.Cursor
	if filter.PageToken != "" {
		decoded, err := pagination.DecodeCursor(filter.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, fmt.Errorf("decode page token: %w", err)
		}
		cursor = decoded
	}

	rows, err := s.repo.ListUnmatched(tx, filter.BankAccountID, filter.Rail, cursor, limit)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	page, pageInfo := pagination.BuildCursorPageInfo(rows, limit, func(row *reconciliationdomain.SettlementEvent) string {
		token, encodeErr := pagination.EncodeCursor(pagination.Cursor{
			ID:        row.ID.String(),
			Timestamp: row.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if encodeErr != nil {
			return ""
		}
		return token
	})
	return page, pageInfo, nil
}

func mapProviderStatus(raw string) reconciliationdomain.SettlementStatus {
	switch raw {
	case "returned":
		return reconciliationdomain.SettlementReversed
	default:
		return reconciliationdomain.SettlementStatus(raw)
	}
}

// processRecord ingests one settlement record and, if it matches a known
// payment attempt, advances the instruction and posts the settlement ledger
// entry. Returns whether a new settlement_event row was created.
func (s *Service) processRecord(ctx context.Context, tx *gorm.DB, bankAccountID uuid.UUID, rail string, record providerdomain.SettlementRecord) (bool, error) {
	newStatus := mapProviderStatus(record.Status)
	isNewEvent := false

	existing, err := s.repo.FindByTrace(tx, bankAccountID, record.ExternalTraceID)
	var eventID uuid.UUID
	if err != nil {
		payload, marshalErr := rawPayloadJSON(record.RawPayload)
		if marshalErr != nil {
			return false, marshalErr
		}
		eventID = idgen.NewID()
		row := reconciliationdomain.SettlementEvent{
			ID:              eventID,
			BankAccountID:   bankAccountID,
			Rail:            rail,
			Direction:       "inbound",
			Amount:          record.Amount,
			Currency:        record.Currency,
			Status:          newStatus,
			ExternalTraceID: record.ExternalTraceID,
			EffectiveDate:   record.EffectiveDate,
			RawPayload:      payload,
			CreatedAt:       time.Now().UTC(),
			UpdatedAt:       time.Now().UTC(),
		}
		created, insertErr := s.repo.Insert(tx, row)
		if insertErr != nil {
			return false, insertErr
		}
		if !created {
			reloaded, reloadErr := s.repo.FindByTrace(tx, bankAccountID, record.ExternalTraceID)
			if reloadErr != nil {
				return false, reloadErr
			}
			existing = reloaded
		} else {
			isNewEvent = true
		}
	} else {
		eventID = existing.ID
		if existing.Status != newStatus {
			if existing.Status == reconciliationdomain.SettlementSettled && newStatus == reconciliationdomain.SettlementReversed {
				linkedEntryID, linkErr := s.repo.FindLinkedLedgerEntry(tx, existing.ID)
				if linkErr != nil {
					return false, linkErr
				}
				if _, err := s.ledger.ReverseEntry(ctx, tx, linkedEntryID, fmt.Sprintf("settlement_reversal_%s", existing.ID), "returned"); err != nil {
					return false, err
				}
			}
			if err := s.repo.UpdateStatus(tx, existing.ID, newStatus, record.EffectiveDate); err != nil {
				return false, err
			}
		}
	}

	attempt, err := s.paymentRepo.FindAttemptByProviderRequestID(tx, rail, record.ExternalTraceID)
	if err != nil {
		// Unmatched settlements are not errors (spec §4.4); nothing further to reconcile.
		return isNewEvent, nil
	}

	instruction, err := s.paymentRepo.FindByIDAny(tx, attempt.InstructionID)
	if err != nil {
		return isNewEvent, err
	}

	desiredInstructionStatus, ok := instructionStatusFor(newStatus)
	if !ok || instruction.Status == desiredInstructionStatus {
		return isNewEvent, nil
	}

	if err := s.payment.UpdateStatus(ctx, tx, instruction.TenantID, instruction.ID, desiredInstructionStatus); err != nil {
		return isNewEvent, err
	}

	if desiredInstructionStatus == paymentdomain.StatusSettled {
		settlementClearing, err := s.ledger.EnsureAccount(ctx, tx, instruction.TenantID, instruction.LegalEntityID, ledgerdomain.AccountPSPSettlementClearing, instruction.Currency)
		if err != nil {
			return isNewEvent, err
		}
		fundingClearing, err := s.ledger.EnsureAccount(ctx, tx, instruction.TenantID, instruction.LegalEntityID, ledgerdomain.AccountClientFundingClearing, instruction.Currency)
		if err != nil {
			return isNewEvent, err
		}
		posted, err := s.ledger.PostEntry(ctx, tx, ledgerdomain.PostEntryInput{
			TenantID:        instruction.TenantID,
			LegalEntityID:   instruction.LegalEntityID,
			EntryType:       ledgerdomain.EntryEmployeePaymentSettled,
			DebitAccountID:  settlementClearing,
			CreditAccountID: fundingClearing,
			Amount:          instruction.Amount,
			SourceType:      "settlement_event",
			SourceID:        eventID,
			CorrelationID:   instruction.ID,
			IdempotencyKey:  fmt.Sprintf("settlement_%s", eventID),
			PostedAt:        time.Now().UTC(),
		})
		if err != nil {
			return isNewEvent, err
		}
		if posted.IsNew {
			if err := s.repo.InsertLink(tx, eventID, posted.EntryID); err != nil {
				return isNewEvent, err
			}
		}
	}

	return isNewEvent, nil
}

func instructionStatusFor(status reconciliationdomain.SettlementStatus) (paymentdomain.Status, bool) {
	switch status {
	case reconciliationdomain.SettlementAccepted:
		return paymentdomain.StatusAccepted, true
	case reconciliationdomain.SettlementSettled:
		return paymentdomain.StatusSettled, true
	case reconciliationdomain.SettlementFailed:
		return paymentdomain.StatusFailed, true
	case reconciliationdomain.SettlementReversed:
		return paymentdomain.StatusReversed, true
	default:
		return "", false
	}
}

func rawPayloadJSON(payload map[string]any) (datatypes.JSON, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
