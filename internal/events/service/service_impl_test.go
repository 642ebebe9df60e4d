package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/payroll-psp-core/internal/events/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/events/repository"
	"github.com/smallbiznis/payroll-psp-core/pkg/idgen"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&eventdomain.DomainEvent{}))
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_domain_event_id ON domain_event(event_id)")
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(Params{
		Repo: repository.New(db),
		Log:  zap.NewNop(),
		Seq:  idgen.NewSequencer(node),
	}).(*Service)
	return svc, db
}

func TestAppend_IdempotentByEventID(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()

	eventID := idgen.NewID()
	tenantID := idgen.NewID()
	correlationID := idgen.NewID()

	evt := eventdomain.NewEvent{
		EventID:       eventID,
		EventType:     eventdomain.TypeLedgerEntryPosted,
		Category:      eventdomain.CategoryLedger,
		TenantID:      tenantID,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
		Payload:       map[string]any{"ledger_entry_id": "abc"},
	}

	isNew, err := svc.Append(ctx, db, evt)
	require.NoError(t, err)
	require.True(t, isNew)

	isNew, err = svc.Append(ctx, db, evt)
	require.NoError(t, err)
	require.False(t, isNew, "second append with the same event_id must be a no-op")

	var count int64
	require.NoError(t, db.Model(&eventdomain.DomainEvent{}).Where("event_id = ?", eventID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestReplay_OrdersByTimestampThenEventID(t *testing.T) {
	svc, db := newTestService(t)
	ctx := t.Context()
	tenantID := idgen.NewID()
	correlationID := idgen.NewID()

	base := time.Now().Truncate(time.Second)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := idgen.NewID()
		ids = append(ids, id)
		_, err := svc.Append(ctx, db, eventdomain.NewEvent{
			EventID:       id,
			EventType:     eventdomain.TypeLedgerEntryPosted,
			Category:      eventdomain.CategoryLedger,
			TenantID:      tenantID,
			CorrelationID: correlationID,
			Timestamp:     base,
			Payload:       map[string]any{"i": i},
		})
		require.NoError(t, err)
	}

	rows, err := svc.Replay(ctx, eventdomain.ReplayFilter{TenantID: tenantID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, rows[0].Timestamp.Unix(), rows[1].Timestamp.Unix())
	for i := 1; i < len(rows); i++ {
		require.Less(t, rows[i-1].EventID.String(), rows[i].EventID.String(), "equal timestamps must tie-break on event_id")
	}
}
