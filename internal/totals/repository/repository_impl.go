package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/pledgekit/fundway/internal/payment/domain"
	"github.com/pledgekit/fundway/internal/totals/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ComputeBase(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) (int64, int64, int64, error) {
	var row struct {
		TotalAmount int64 `gorm:"column:total_amount"`
		PledgeCount int64 `gorm:"column:pledge_count"`
		DonorCount  int64 `gorm:"column:donor_count"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(t.amount), 0) AS total_amount,
			COUNT(t.id) AS pledge_count,
			COUNT(DISTINCT p.donor_email) AS donor_count
		 FROM payment_transactions t
		 JOIN pledges p ON p.id = t.pledge_id
		 WHERE p.campaign_id = ? AND t.status = ?`,
		campaignID,
		paymentdomain.StatusCaptured,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, 0, err
	}
	return row.TotalAmount, row.PledgeCount, row.DonorCount, nil
}

func (r *repo) FindSnapshot(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) (*domain.AggregateSnapshot, error) {
	var item domain.AggregateSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT campaign_id, total_amount, pledge_count, donor_count, stale, computed_at, updated_at
		 FROM aggregate_snapshots
		 WHERE campaign_id = ?
		 LIMIT 1`,
		campaignID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.CampaignID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpsertSnapshot(ctx context.Context, db *gorm.DB, snapshot *domain.AggregateSnapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO aggregate_snapshots (
			campaign_id, total_amount, pledge_count, donor_count, stale, computed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id) DO UPDATE SET
			total_amount = excluded.total_amount,
			pledge_count = excluded.pledge_count,
			donor_count = excluded.donor_count,
			stale = excluded.stale,
			computed_at = excluded.computed_at,
			updated_at = excluded.updated_at`,
		snapshot.CampaignID,
		snapshot.TotalAmount,
		snapshot.PledgeCount,
		snapshot.DonorCount,
		snapshot.Stale,
		snapshot.ComputedAt,
		snapshot.UpdatedAt,
	).Error
}

func (r *repo) MarkStale(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE aggregate_snapshots
		 SET stale = ?, updated_at = ?
		 WHERE campaign_id = ?`,
		true,
		at,
		campaignID,
	).Error
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, limit int) ([]domain.AggregateSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.AggregateSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT campaign_id, total_amount, pledge_count, donor_count, stale, computed_at, updated_at
		 FROM aggregate_snapshots
		 WHERE stale = ?
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		true,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
