package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("pledge not found")
	ErrInvalidCampaign = errors.New("invalid campaign id")
	ErrInvalidDonor    = errors.New("invalid donor email")
	ErrInvalidAmount   = errors.New("invalid pledge amount")
	ErrInvalidCurrency = errors.New("invalid pledge currency")
	ErrInvalidMetadata = errors.New("invalid pledge metadata")
)

type CreateInput struct {
	CampaignID snowflake.ID
	DonorEmail string
	Amount     int64
	Currency   string
	// Metadata is caller-supplied JSON stored verbatim with the pledge.
	Metadata json.RawMessage
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*Pledge, error)
	Get(ctx context.Context, id snowflake.ID) (*Pledge, error)
	ListByCampaign(ctx context.Context, campaignID snowflake.ID, limit int) ([]Pledge, error)
	// Settle records the payment outcome for the pledge. Stale settlements
	// (pledge already past PENDING) are no-ops.
	Settle(ctx context.Context, id snowflake.ID, status Status, at time.Time) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pledge *Pledge) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Pledge, error)
	ListByCampaign(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, limit int) ([]Pledge, error)
	// UpdateStatus moves a pledge out of fromStatus and reports whether a
	// row actually changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, fromStatus, toStatus Status, updatedAt time.Time) (bool, error)
}
