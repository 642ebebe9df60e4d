package service

import (
	"context"

	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/payroll-psp-core/internal/events/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/events/repository"
	obsmetrics "github.com/smallbiznis/payroll-psp-core/internal/observability/metrics"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Repo       *repository.Repository
	Log        *zap.Logger
	Seq        *idgen.Sequencer
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	repo       *repository.Repository
	log        *zap.Logger
	seq        *idgen.Sequencer
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) eventdomain.Service {
	return &Service{
		repo:       p.Repo,
		log:        p.Log.Named("events.service"),
		seq:        p.Seq,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, e eventdomain.NewEvent) (bool, error) {
	if e.EventID == uuid.Nil {
		e.EventID = idgen.NewID()
	}
	isNew, err := s.repo.Insert(ctx, tx, s.seq.Next(), e)
	if err != nil {
		return false, err
	}
	if isNew && s.obsMetrics != nil {
		s.obsMetrics.RecordEventAppended(ctx, string(e.Category))
	}
	if !isNew {
		s.log.Debug("duplicate event append suppressed", zap.String("event_id", e.EventID.String()))
	}
	return isNew, nil
}

func (s *Service) AppendBatch(ctx context.Context, tx *gorm.DB, events []eventdomain.NewEvent) error {
	for _, e := range events {
		if _, err := s.Append(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, eventID uuid.UUID) (*eventdomain.DomainEvent, error) {
	return s.repo.GetByID(ctx, eventID)
}

func (s *Service) GetByCorrelation(ctx context.Context, tenantID, correlationID uuid.UUID) ([]eventdomain.DomainEvent, error) {
	return s.repo.GetByCorrelation(ctx, tenantID, correlationID)
}

func (s *Service) GetByEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]eventdomain.DomainEvent, error) {
	return s.repo.GetByEntity(ctx, tenantID, entityType, entityID)
}

func (s *Service) Replay(ctx context.Context, filter eventdomain.ReplayFilter) ([]eventdomain.DomainEvent, error) {
	return s.repo.Replay(ctx, filter)
}

func (s *Service) Count(ctx context.Context, filter eventdomain.ReplayFilter) (int64, error) {
	return s.repo.Count(ctx, filter)
}
