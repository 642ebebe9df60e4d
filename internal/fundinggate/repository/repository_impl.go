// Package repository persists Funding Gate evaluations and answers the
// trailing-paid-runs query spike detection needs. Raw SQL inside the
// caller's transaction, matching internal/ledger/repository's idiom.
package repository

import (
	"encoding/json"

	"github.com/google/uuid"
	fundinggatedomain "github.com/smallbiznis/payroll-psp-core/internal/fundinggate/domain"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"gorm.io/gorm"
)

type Repository struct{}

func New() *Repository {
	return &Repository{}
}

// FindByIdempotencyKey returns the persisted evaluation for a retry, if any.
func (r *Repository) FindByIdempotencyKey(tx *gorm.DB, tenantID uuid.UUID, idempotencyKey string) (*fundinggatedomain.Evaluation, error) {
	var row fundinggatedomain.Evaluation
	err := tx.Where("tenant_id = ? AND idempotency_key = ?", tenantID, idempotencyKey).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Insert writes the evaluation with ON CONFLICT (tenant_id, idempotency_key) DO NOTHING.
func (r *Repository) Insert(tx *gorm.DB, eval fundinggatedomain.Evaluation, reasons []fundinggatedomain.Reason) (bool, error) {
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return false, err
	}
	result := tx.Exec(
		`INSERT INTO funding_gate_evaluation (
			id, tenant_id, legal_entity_id, pay_run_id, gate_type, idempotency_key,
			outcome, required, available, net_pay, reasons, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`,
		eval.ID, eval.TenantID, eval.LegalEntityID, eval.PayRunID, string(eval.GateType), eval.IdempotencyKey,
		string(eval.Outcome), eval.Required, eval.Available, eval.NetPay, reasonsJSON, eval.EvaluatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// TrailingPaidNetAverage averages net_pay over the most recent `window`
// pay-gate evaluations whose outcome was `pass` for this legal entity. The
// current evaluation is not persisted yet at call time, so it is never part
// of the window.
func (r *Repository) TrailingPaidNetAverage(tx *gorm.DB, tenantID, legalEntityID uuid.UUID, window int) (money.Amount, int, error) {
	var rows []struct {
		NetPay money.Amount
	}
	err := tx.Raw(
		`SELECT net_pay FROM funding_gate_evaluation
		WHERE tenant_id = ? AND legal_entity_id = ? AND gate_type = 'pay' AND outcome = 'pass'
		ORDER BY evaluated_at DESC LIMIT ?`,
		tenantID, legalEntityID, window,
	).Scan(&rows).Error
	if err != nil {
		return money.Zero, 0, err
	}
	if len(rows) == 0 {
		return money.Zero, 0, nil
	}
	sum := money.Zero
	for _, row := range rows {
		sum = sum.Add(row.NetPay)
	}
	return sum.MulFloat(1.0 / float64(len(rows))), len(rows), nil
}
