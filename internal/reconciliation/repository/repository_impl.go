// Package repository is Reconciliation's storage layer: idempotent
// settlement ingestion by (bank_account, external_trace_id) and the
// settlement->ledger-entry link table. Raw SQL inside the caller's
// transaction, matching internal/ledger/repository's idiom.
package repository

import (
	"time"

	"github.com/google/uuid"
	reconciliationdomain "github.com/smallbiznis/payroll-psp-core/internal/reconciliation/domain"
	"github.com/smallbiznis/payroll-psp-core/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct{}

func New() *Repository {
	return &Repository{}
}

func (r *Repository) FindByTrace(tx *gorm.DB, bankAccountID uuid.UUID, externalTraceID string) (*reconciliationdomain.SettlementEvent, error) {
	var row reconciliationdomain.SettlementEvent
	err := tx.Where("bank_account_id = ? AND external_trace_id = ?", bankAccountID, externalTraceID).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Insert writes with ON CONFLICT (bank_account_id, external_trace_id) DO NOTHING.
func (r *Repository) Insert(tx *gorm.DB, row reconciliationdomain.SettlementEvent) (bool, error) {
	result := tx.Exec(
		`INSERT INTO settlement_event (
			id, bank_account_id, rail, direction, amount, currency, status,
			external_trace_id, effective_date, raw_payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bank_account_id, external_trace_id) DO NOTHING`,
		row.ID, row.BankAccountID, row.Rail, row.Direction, row.Amount, row.Currency, string(row.Status),
		row.ExternalTraceID, row.EffectiveDate, datatypes.JSON(row.RawPayload), row.CreatedAt, row.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) UpdateStatus(tx *gorm.DB, id uuid.UUID, status reconciliationdomain.SettlementStatus, effectiveDate time.Time) error {
	return tx.Exec(
		`UPDATE settlement_event SET status = ?, effective_date = ?, updated_at = ? WHERE id = ?`,
		string(status), effectiveDate, time.Now().UTC(), id,
	).Error
}

func (r *Repository) InsertLink(tx *gorm.DB, settlementEventID, ledgerEntryID uuid.UUID) error {
	id := uuid.New()
	return tx.Exec(
		`INSERT INTO settlement_link (id, settlement_event_id, ledger_entry_id, created_at) VALUES (?, ?, ?, ?)`,
		id, settlementEventID, ledgerEntryID, time.Now().UTC(),
	).Error
}

func (r *Repository) FindLinkedLedgerEntry(tx *gorm.DB, settlementEventID uuid.UUID) (uuid.UUID, error) {
	var link reconciliationdomain.SettlementLink
	err := tx.Where("settlement_event_id = ?", settlementEventID).Order("created_at desc").Take(&link).Error
	if err != nil {
		return uuid.Nil, err
	}
	return link.LedgerEntryID, nil
}

// ListUnmatched pages through settled/reversed settlement_event rows with no
// settlement_link, newest first, following the donor's audit_logs
// created_at/id keyset-cursor idiom. limit+1 rows are fetched so the caller
// can derive has_more without a separate count query.
func (r *Repository) ListUnmatched(tx *gorm.DB, bankAccountID uuid.UUID, rail string, cursor *pagination.Cursor, limit int) ([]*reconciliationdomain.SettlementEvent, error) {
	stmt := tx.Model(&reconciliationdomain.SettlementEvent{}).
		Where("bank_account_id = ?", bankAccountID).
		Where("status IN ?", []string{string(reconciliationdomain.SettlementSettled), string(reconciliationdomain.SettlementReversed)}).
		Where("NOT EXISTS (SELECT 1 FROM settlement_link sl WHERE sl.settlement_event_id = settlement_event.id)")

	if rail != "" {
		stmt = stmt.Where("rail = ?", rail)
	}
	if cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.Timestamp, cursor.Timestamp, cursor.ID)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit + 1)
	}

	var rows []*reconciliationdomain.SettlementEvent
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
