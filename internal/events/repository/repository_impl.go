// Package repository implements the domain event store's storage layer:
// idempotent append by event_id and ordered replay queries, following the
// donor's raw-SQL-inside-GORM-transaction idiom
// (internal/ledger/service/service_impl.go, internal/audit/repository).
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/payroll-psp-core/internal/events/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes one event inside tx with ON CONFLICT (event_id) DO NOTHING,
// returning whether the row was newly inserted.
func (r *Repository) Insert(ctx context.Context, tx *gorm.DB, sequence int64, e eventdomain.NewEvent) (bool, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal event payload: %w", err)
	}
	version := e.Version
	if version == 0 {
		version = 1
	}

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO domain_event (
			event_id, sequence, event_type, category, tenant_id,
			correlation_id, causation_id, timestamp, payload, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, sequence, e.EventType, string(e.Category), e.TenantID,
		e.CorrelationID, e.CausationID, e.Timestamp.UTC(), datatypes.JSON(payload), version,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) GetByID(ctx context.Context, eventID uuid.UUID) (*eventdomain.DomainEvent, error) {
	var row eventdomain.DomainEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) GetByCorrelation(ctx context.Context, tenantID, correlationID uuid.UUID) ([]eventdomain.DomainEvent, error) {
	var rows []eventdomain.DomainEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND correlation_id = ?", tenantID, correlationID).
		Order("timestamp asc, event_id asc").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) GetByEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]eventdomain.DomainEvent, error) {
	key := entityType + "_id"
	var rows []eventdomain.DomainEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND payload ->> ? = ?", tenantID, key, entityID.String()).
		Order("timestamp asc, event_id asc").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Replay(ctx context.Context, filter eventdomain.ReplayFilter) ([]eventdomain.DomainEvent, error) {
	q := r.scoped(ctx, filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var rows []eventdomain.DomainEvent
	err := q.Order("timestamp asc, event_id asc").
		Limit(limit).Offset(filter.Offset).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Count(ctx context.Context, filter eventdomain.ReplayFilter) (int64, error) {
	var count int64
	err := r.scoped(ctx, filter).Model(&eventdomain.DomainEvent{}).Count(&count).Error
	return count, err
}

func (r *Repository) scoped(ctx context.Context, filter eventdomain.ReplayFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", filter.TenantID)
	if filter.After != nil {
		q = q.Where("timestamp > ?", filter.After.UTC())
	}
	if filter.Before != nil {
		q = q.Where("timestamp < ?", filter.Before.UTC())
	}
	if len(filter.Types) > 0 {
		q = q.Where("event_type IN ?", filter.Types)
	}
	if len(filter.Categories) > 0 {
		cats := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			cats[i] = string(c)
		}
		q = q.Where("category IN ?", cats)
	}
	return q
}
