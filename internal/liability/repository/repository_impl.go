// Package repository is Liability Attribution's storage layer: the
// return_code_reference lookup, idempotent liability_event insertion, and
// the recovery-status update. Raw SQL inside the caller's transaction,
// matching internal/ledger/repository's idiom.
package repository

import (
	"time"

	"github.com/google/uuid"
	liabilitydomain "github.com/smallbiznis/payroll-psp-core/internal/liability/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct{}

func New() *Repository {
	return &Repository{}
}

func (r *Repository) FindReturnCode(tx *gorm.DB, rail, code string) (*liabilitydomain.ReturnCodeReference, error) {
	var row liabilitydomain.ReturnCodeReference
	err := tx.Where("rail = ? AND code = ?", rail, code).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Insert writes with ON CONFLICT (tenant_id, idempotency_key) DO NOTHING,
// matching the donor's liability_event.idempotency_key nullable-unique shape
// (a blank idempotency_key never deduplicates).
func (r *Repository) Insert(tx *gorm.DB, row liabilitydomain.Event) (bool, error) {
	evidence, err := marshalEvidence(row.Evidence)
	if err != nil {
		return false, err
	}
	if row.IdempotencyKey == "" {
		result := tx.Exec(
			`INSERT INTO liability_event (
				id, tenant_id, legal_entity_id, source_type, source_id,
				error_origin, liability_party, loss_amount, recovery_path,
				recovery_status, recovery_amount, determination_reason,
				evidence, idempotency_key, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
			row.ID, row.TenantID, row.LegalEntityID, row.SourceType, row.SourceID,
			string(row.ErrorOrigin), string(row.LiabilityParty), row.LossAmount, string(row.RecoveryPath),
			string(row.RecoveryStatus), row.RecoveryAmount, row.DeterminationReason,
			evidence, row.CreatedAt,
		)
		return result.Error == nil, result.Error
	}
	result := tx.Exec(
		`INSERT INTO liability_event (
			id, tenant_id, legal_entity_id, source_type, source_id,
			error_origin, liability_party, loss_amount, recovery_path,
			recovery_status, recovery_amount, determination_reason,
			evidence, idempotency_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`,
		row.ID, row.TenantID, row.LegalEntityID, row.SourceType, row.SourceID,
		string(row.ErrorOrigin), string(row.LiabilityParty), row.LossAmount, string(row.RecoveryPath),
		string(row.RecoveryStatus), row.RecoveryAmount, row.DeterminationReason,
		evidence, row.IdempotencyKey, row.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) FindByIdempotencyKey(tx *gorm.DB, tenantID uuid.UUID, idempotencyKey string) (*liabilitydomain.Event, error) {
	var row liabilitydomain.Event
	err := tx.Where("tenant_id = ? AND idempotency_key = ?", tenantID, idempotencyKey).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) FindByID(tx *gorm.DB, tenantID, eventID uuid.UUID) (*liabilitydomain.Event, error) {
	var row liabilitydomain.Event
	err := tx.Where("tenant_id = ? AND id = ?", tenantID, eventID).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateRecoveryStatus sets recovery_status (and recovery_amount when
// provided), stamping resolved_at on terminal statuses. Returns false if no
// row matched (event not found for this tenant).
func (r *Repository) UpdateRecoveryStatus(tx *gorm.DB, tenantID, eventID uuid.UUID, status liabilitydomain.RecoveryStatus, recoveryAmount *string, resolve bool) (bool, error) {
	var result *gorm.DB
	switch {
	case recoveryAmount != nil && resolve:
		result = tx.Exec(
			`UPDATE liability_event SET recovery_status = ?, recovery_amount = ?, resolved_at = ? WHERE tenant_id = ? AND id = ?`,
			string(status), *recoveryAmount, time.Now().UTC(), tenantID, eventID,
		)
	case recoveryAmount != nil:
		result = tx.Exec(
			`UPDATE liability_event SET recovery_status = ?, recovery_amount = ? WHERE tenant_id = ? AND id = ?`,
			string(status), *recoveryAmount, tenantID, eventID,
		)
	case resolve:
		result = tx.Exec(
			`UPDATE liability_event SET recovery_status = ?, resolved_at = ? WHERE tenant_id = ? AND id = ?`,
			string(status), time.Now().UTC(), tenantID, eventID,
		)
	default:
		result = tx.Exec(
			`UPDATE liability_event SET recovery_status = ? WHERE tenant_id = ? AND id = ?`,
			string(status), tenantID, eventID,
		)
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func marshalEvidence(payload datatypes.JSON) (datatypes.JSON, error) {
	if len(payload) == 0 {
		return datatypes.JSON("{}"), nil
	}
	return payload, nil
}
