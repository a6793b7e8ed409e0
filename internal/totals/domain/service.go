package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrInvalidCampaign = errors.New("invalid campaign id")

type Service interface {
	// Read serves totals for a campaign. With realtime set it bypasses both
	// cache tiers and aggregates from captured payments directly.
	Read(ctx context.Context, campaignID snowflake.ID, realtime bool) (*Totals, error)
	// Invalidate evicts the hot cache entry and marks the snapshot stale.
	Invalidate(ctx context.Context, campaignID snowflake.ID) error
	// RefreshStale recomputes stale snapshots and returns how many were
	// refreshed.
	RefreshStale(ctx context.Context, limit int) (int, error)
}

type Repository interface {
	// ComputeBase aggregates captured payments for the campaign. Donors are
	// counted by distinct email.
	ComputeBase(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) (amount int64, count int64, donors int64, err error)
	FindSnapshot(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) (*AggregateSnapshot, error)
	UpsertSnapshot(ctx context.Context, db *gorm.DB, snapshot *AggregateSnapshot) error
	MarkStale(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, at time.Time) error
	ListStale(ctx context.Context, db *gorm.DB, limit int) ([]AggregateSnapshot, error)
}
