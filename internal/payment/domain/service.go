package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("payment not found")
	ErrInvalidEvent    = errors.New("invalid payment event")
	ErrInvalidAmount   = errors.New("invalid payment amount")
	ErrInvalidCurrency = errors.New("invalid payment currency")
	ErrInvalidStatus   = errors.New("unknown payment status")
	ErrVersionConflict = errors.New("payment version conflict")
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDuplicate Outcome = "duplicate"
)

// GatewayEvent is one status notification from the payment gateway, already
// past signature checks and deduplication.
type GatewayEvent struct {
	EventID   string
	Reference string
	NewStatus Status
	Timestamp time.Time
}

// ApplyResult reports what a gateway event did to the transaction. Expected
// rejections and stale events are results, not errors.
type ApplyResult struct {
	Outcome   Outcome
	Reference string
	OldStatus Status
	NewStatus Status
	Version   int
	Reason    string
}

type CreateIntentInput struct {
	PledgeID snowflake.ID
	Amount   int64
	Currency string
}

type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*Transaction, error)
	Get(ctx context.Context, reference string) (*Transaction, error)
	Apply(ctx context.Context, event GatewayEvent) (*ApplyResult, error)
	Refund(ctx context.Context, reference string, at time.Time) (*ApplyResult, error)
	Transitions(ctx context.Context, reference string) ([]StateTransition, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Transaction, error)
	FindByReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string) (*Transaction, error)
	// UpdateStatus advances the row guarded by the version it was read at.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, fromVersion int, status Status, updatedAt time.Time) (bool, error)
	InsertTransition(ctx context.Context, db *gorm.DB, transition *StateTransition) error
	ListTransitions(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]StateTransition, error)
}
