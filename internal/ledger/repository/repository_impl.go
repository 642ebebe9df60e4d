// Package repository implements the Ledger's storage layer: lazy
// get-or-create accounts, idempotent entry inserts, balance aggregation, and
// reservation lifecycle updates. Raw SQL inside the caller's transaction,
// following the donor's internal/ledger/service/service_impl.go idiom
// (INSERT ... ON CONFLICT DO NOTHING, RowsAffected==0 duplicate detection).
package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	ledgerdomain "github.com/smallbiznis/payroll-psp-core/internal/ledger/domain"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct{}

func New() *Repository {
	return &Repository{}
}

// EnsureAccount get-or-creates the account row for the scope.
func (r *Repository) EnsureAccount(tx *gorm.DB, tenantID, legalEntityID uuid.UUID, accountType ledgerdomain.AccountType, currency string) (uuid.UUID, error) {
	id := idgen.NewID()
	now := time.Now().UTC()
	result := tx.Exec(
		`INSERT INTO ledger_account (id, tenant_id, legal_entity_id, account_type, currency, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?)
		ON CONFLICT (tenant_id, legal_entity_id, account_type, currency) DO NOTHING`,
		id, tenantID, legalEntityID, string(accountType), currency, now,
	)
	if result.Error != nil {
		return uuid.Nil, result.Error
	}
	if result.RowsAffected > 0 {
		return id, nil
	}

	var existing ledgerdomain.LedgerAccount
	err := tx.Where(
		"tenant_id = ? AND legal_entity_id = ? AND account_type = ? AND currency = ?",
		tenantID, legalEntityID, string(accountType), currency,
	).Take(&existing).Error
	if err != nil {
		return uuid.Nil, err
	}
	return existing.ID, nil
}

// InsertEntry writes the entry row with ON CONFLICT (tenant_id, idempotency_key) DO NOTHING.
func (r *Repository) InsertEntry(tx *gorm.DB, entryID uuid.UUID, in ledgerdomain.PostEntryInput) (bool, error) {
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return false, err
	}
	result := tx.Exec(
		`INSERT INTO ledger_entry (
			id, tenant_id, legal_entity_id, posted_at, entry_type,
			debit_account_id, credit_account_id, amount,
			source_type, source_id, correlation_id, idempotency_key, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`,
		entryID, in.TenantID, in.LegalEntityID, in.PostedAt.UTC(), string(in.EntryType),
		in.DebitAccountID, in.CreditAccountID, in.Amount,
		in.SourceType, in.SourceID, in.CorrelationID, in.IdempotencyKey, datatypes.JSON(metadata),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByIdempotencyKey returns the existing entry for a duplicate post.
func (r *Repository) FindByIdempotencyKey(tx *gorm.DB, tenantID uuid.UUID, idempotencyKey string) (*ledgerdomain.LedgerEntry, error) {
	var row ledgerdomain.LedgerEntry
	err := tx.Where("tenant_id = ? AND idempotency_key = ?", tenantID, idempotencyKey).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) FindByID(tx *gorm.DB, tenantID, entryID uuid.UUID) (*ledgerdomain.LedgerEntry, error) {
	var row ledgerdomain.LedgerEntry
	err := tx.Where("tenant_id = ? AND id = ?", tenantID, entryID).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// AccountBalance aggregates Σcredits − Σdebits for one account, scoped by tenant.
func (r *Repository) AccountBalance(tx *gorm.DB, tenantID, accountID uuid.UUID) (money.Amount, error) {
	var row struct {
		Credits money.Amount
		Debits  money.Amount
	}
	err := tx.Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN credit_account_id = ? THEN amount ELSE 0 END), 0) AS credits,
			COALESCE(SUM(CASE WHEN debit_account_id = ? THEN amount ELSE 0 END), 0) AS debits
		FROM ledger_entry WHERE tenant_id = ? AND (credit_account_id = ? OR debit_account_id = ?)`,
		accountID, accountID, tenantID, accountID, accountID,
	).Scan(&row).Error
	if err != nil {
		return money.Zero, err
	}
	return row.Credits.Sub(row.Debits), nil
}

// ActiveReservationTotal sums active reservations for a legal entity.
func (r *Repository) ActiveReservationTotal(tx *gorm.DB, tenantID, legalEntityID uuid.UUID) (money.Amount, error) {
	var total money.Amount
	err := tx.Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM reservation
		WHERE tenant_id = ? AND legal_entity_id = ? AND status = 'active'`,
		tenantID, legalEntityID,
	).Scan(&total).Error
	return total, err
}

func (r *Repository) InsertReservation(tx *gorm.DB, res ledgerdomain.Reservation) error {
	return tx.Exec(
		`INSERT INTO reservation (id, tenant_id, legal_entity_id, reserve_type, amount, currency, status, source_type, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)`,
		res.ID, res.TenantID, res.LegalEntityID, string(res.ReserveType), res.Amount, res.Currency,
		res.SourceType, res.SourceID, res.CreatedAt.UTC(),
	).Error
}

// ReleaseReservation transitions active -> released|consumed. Returns false
// (non-fatal) if not found or not active.
func (r *Repository) ReleaseReservation(tx *gorm.DB, tenantID, reservationID uuid.UUID, newStatus string) (bool, error) {
	now := time.Now().UTC()
	result := tx.Exec(
		`UPDATE reservation SET status = ?, released_at = ?
		WHERE tenant_id = ? AND id = ? AND status = 'active'`,
		newStatus, now, tenantID, reservationID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
