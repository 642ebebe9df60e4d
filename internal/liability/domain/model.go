// Package domain defines Liability Attribution's entities and contract
// (spec §3, §4.5): a pure classification function over a seeded return-code
// reference table, plus idempotent recording and a recovery lifecycle with
// terminal statuses. Grounded in
// original_source/src/payroll_engine/psp/services/liability.py's
// LiabilityService, adapted to the donor's GORM entity and
// insert/load-on-conflict idioms.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payroll-psp-core/pkg/money"
	"gorm.io/datatypes"
)

type ErrorOrigin string

const (
	ErrorOriginClient       ErrorOrigin = "client"
	ErrorOriginPayrollEngine ErrorOrigin = "payroll_engine"
	ErrorOriginProvider     ErrorOrigin = "provider"
	ErrorOriginBank         ErrorOrigin = "bank"
	ErrorOriginRecipient    ErrorOrigin = "recipient"
)

type LiabilityParty string

const (
	PartyEmployer  LiabilityParty = "employer"
	PartyPSP       LiabilityParty = "psp"
	PartyProcessor LiabilityParty = "processor"
	PartyShared    LiabilityParty = "shared"
	PartyPending   LiabilityParty = "pending"
)

type RecoveryPath string

const (
	RecoveryOffsetFuture RecoveryPath = "offset_future"
	RecoveryClawback     RecoveryPath = "clawback"
	RecoveryWriteOff     RecoveryPath = "write_off"
	RecoveryInsurance    RecoveryPath = "insurance"
	RecoveryDispute      RecoveryPath = "dispute"
	RecoveryNone         RecoveryPath = "none"
)

type RecoveryStatus string

const (
	RecoveryPending    RecoveryStatus = "pending"
	RecoveryInProgress RecoveryStatus = "in_progress"
	RecoveryPartial    RecoveryStatus = "partial"
	RecoveryComplete   RecoveryStatus = "complete"
	RecoveryFailed     RecoveryStatus = "failed"
	RecoveryWrittenOff RecoveryStatus = "written_off"
)

// IsTerminal reports whether a recovery status ends the lifecycle — these
// three set resolved_at (spec §4.5).
func (s RecoveryStatus) IsTerminal() bool {
	return s == RecoveryComplete || s == RecoveryWrittenOff || s == RecoveryFailed
}

// ReturnCodeReference is the seeded lookup table classifyReturn consults
// (spec §4.5's algorithm names it without a data-model entry; SPEC_FULL §3
// supplements it). Seed data lives in the migration, not in Go source.
type ReturnCodeReference struct {
	Rail               string      `gorm:"column:rail;type:text;primaryKey"`
	Code               string      `gorm:"column:code;type:text;primaryKey"`
	DefaultErrorOrigin ErrorOrigin `gorm:"column:default_error_origin;type:text;not null"`
	DefaultParty       LiabilityParty `gorm:"column:default_liability_party;type:text;not null"`
	IsRecoverable      bool        `gorm:"column:is_recoverable;not null"`
	Description        string      `gorm:"column:description;type:text;not null"`
}

func (ReturnCodeReference) TableName() string { return "return_code_reference" }

// Classification is classifyReturn's pure-function result.
type Classification struct {
	ErrorOrigin          ErrorOrigin
	LiabilityParty       LiabilityParty
	RecoveryPath         RecoveryPath
	LossAmount           money.Amount
	DeterminationReason  string
	IsRecoverable        bool
	Confidence           string
}

// ClassifyContext carries the override signals spec §4.5 names.
type ClassifyContext struct {
	RepeatFailureCount int
	OurDataError       bool
	ErrorDetail        string
}

// Event is a recorded liability determination.
type Event struct {
	ID                   uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	TenantID             uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null;index;uniqueIndex:ux_liability_event_idem,priority:1"`
	LegalEntityID        uuid.UUID      `gorm:"column:legal_entity_id;type:uuid;not null;index"`
	SourceType           string         `gorm:"column:source_type;type:text;not null"`
	SourceID             uuid.UUID      `gorm:"column:source_id;type:uuid;not null"`
	ErrorOrigin          ErrorOrigin    `gorm:"column:error_origin;type:text;not null"`
	LiabilityParty       LiabilityParty `gorm:"column:liability_party;type:text;not null"`
	LossAmount           money.Amount   `gorm:"column:loss_amount;type:numeric(18,4);not null"`
	RecoveryPath         RecoveryPath   `gorm:"column:recovery_path;type:text;not null"`
	RecoveryStatus       RecoveryStatus `gorm:"column:recovery_status;type:text;not null;default:pending"`
	RecoveryAmount       money.Amount   `gorm:"column:recovery_amount;type:numeric(18,4)"`
	DeterminationReason  string         `gorm:"column:determination_reason;type:text;not null"`
	Evidence             datatypes.JSON `gorm:"column:evidence;type:jsonb"`
	IdempotencyKey       string         `gorm:"column:idempotency_key;type:text;uniqueIndex:ux_liability_event_idem,priority:2"`
	CreatedAt            time.Time      `gorm:"column:created_at;not null"`
	ResolvedAt           *time.Time     `gorm:"column:resolved_at"`
}

func (Event) TableName() string { return "liability_event" }

// RecordResult is recordLiabilityEvent's return shape.
type RecordResult struct {
	EventID uuid.UUID
	IsNew   bool
}
