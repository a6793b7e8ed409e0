package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pledgekit/fundway/internal/pledge/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pledge *domain.Pledge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pledges (
			id, campaign_id, donor_email, amount, currency, status, version,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pledge.ID,
		pledge.CampaignID,
		pledge.DonorEmail,
		pledge.Amount,
		pledge.Currency,
		pledge.Status,
		pledge.Version,
		pledge.Metadata,
		pledge.CreatedAt,
		pledge.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Pledge, error) {
	var item domain.Pledge
	err := db.WithContext(ctx).Raw(
		`SELECT id, campaign_id, donor_email, amount, currency, status, version,
			metadata, created_at, updated_at
		 FROM pledges
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByCampaign(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, limit int) ([]domain.Pledge, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.Pledge
	err := db.WithContext(ctx).Raw(
		`SELECT id, campaign_id, donor_email, amount, currency, status, version,
			metadata, created_at, updated_at
		 FROM pledges
		 WHERE campaign_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		campaignID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, fromStatus, toStatus domain.Status, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE pledges
		 SET status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		toStatus,
		updatedAt,
		id,
		fromStatus,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
