// Package repository is the Payment Orchestrator's storage layer: idempotent
// instruction creation, conditional (forward-only) status updates, and
// idempotent attempt recording. Raw SQL inside the caller's transaction,
// matching internal/ledger/repository's idiom.
package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	paymentdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct{}

func New() *Repository {
	return &Repository{}
}

// InsertInstruction writes with ON CONFLICT (tenant_id, idempotency_key) DO NOTHING;
// fields other than the key are never used to deduplicate, per spec §4.3.
func (r *Repository) InsertInstruction(tx *gorm.DB, id uuid.UUID, in paymentdomain.CreateInstructionInput) (bool, error) {
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	result := tx.Exec(
		`INSERT INTO payment_instruction (
			id, tenant_id, legal_entity_id, purpose, direction, amount, currency,
			payee_type, payee_ref_id, requested_settlement_date, status,
			idempotency_key, source_type, source_id, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'created', ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`,
		id, in.TenantID, in.LegalEntityID, string(in.Purpose), string(in.Direction), in.Amount, in.Currency,
		in.PayeeType, in.PayeeRefID, in.RequestedSettlementDate, in.IdempotencyKey,
		in.SourceType, in.SourceID, datatypes.JSON(metadata), now, now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) FindByIdempotencyKey(tx *gorm.DB, tenantID uuid.UUID, idempotencyKey string) (*paymentdomain.Instruction, error) {
	var row paymentdomain.Instruction
	err := tx.Where("tenant_id = ? AND idempotency_key = ?", tenantID, idempotencyKey).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) FindByID(tx *gorm.DB, tenantID, instructionID uuid.UUID) (*paymentdomain.Instruction, error) {
	var row paymentdomain.Instruction
	err := tx.Where("tenant_id = ? AND id = ?", tenantID, instructionID).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByIDAny looks up an instruction without a known tenant, for callers
// (reconciliation) that only have a provider_request_id to start from. The
// query carries no tenant filter, and no row-level-security scope is applied
// to tx.
func (r *Repository) FindByIDAny(tx *gorm.DB, instructionID uuid.UUID) (*paymentdomain.Instruction, error) {
	var row paymentdomain.Instruction
	err := tx.Where("id = ?", instructionID).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateStatus performs a conditional UPDATE guarded by the prior status so
// two concurrent callers can't both apply a transition from a stale read.
func (r *Repository) UpdateStatus(tx *gorm.DB, tenantID, instructionID uuid.UUID, fromStatus, toStatus string) (bool, error) {
	result := tx.Exec(
		`UPDATE payment_instruction SET status = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ?`,
		toStatus, time.Now().UTC(), tenantID, instructionID, fromStatus,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// InsertAttempt writes with ON CONFLICT (provider, provider_request_id) DO NOTHING.
func (r *Repository) InsertAttempt(tx *gorm.DB, id, instructionID uuid.UUID, rail, provider, providerRequestID, status string, requestPayload []byte) (bool, error) {
	result := tx.Exec(
		`INSERT INTO payment_attempt (id, instruction_id, rail, provider, provider_request_id, status, request_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_request_id) DO NOTHING`,
		id, instructionID, rail, provider, providerRequestID, status, datatypes.JSON(requestPayload), time.Now().UTC(),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) FindAttemptByProviderRequestID(tx *gorm.DB, provider, providerRequestID string) (*paymentdomain.Attempt, error) {
	var row paymentdomain.Attempt
	err := tx.Where("provider = ? AND provider_request_id = ?", provider, providerRequestID).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindThirdPartyPayee looks up a display name for a third_party deduction
// target. Not finding one is not an error: the caller falls back to the
// raw payee_ref_id, since this table only enriches the provider payload.
func (r *Repository) FindThirdPartyPayee(tx *gorm.DB, tenantID, legalEntityID uuid.UUID, payeeRefID string) (*paymentdomain.ThirdPartyPayee, error) {
	var row paymentdomain.ThirdPartyPayee
	err := tx.Where("tenant_id = ? AND legal_entity_id = ? AND payee_ref_id = ? AND active", tenantID, legalEntityID, payeeRefID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
