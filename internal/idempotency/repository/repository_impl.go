package repository

import (
	"context"
	"time"

	"github.com/pledgekit/fundway/internal/idempotency/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, record *domain.Record) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO idempotency_records (
			key, response_code, response_body, created_at, expires_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING`,
		record.Key,
		record.ResponseCode,
		record.ResponseBody,
		record.CreatedAt,
		record.ExpiresAt,
		record.CompletedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, key string) (*domain.Record, error) {
	var item domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT key, response_code, response_body, created_at, expires_at, completed_at
		 FROM idempotency_records
		 WHERE key = ?
		 LIMIT 1`,
		key,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Key == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, key string, statusCode int, body []byte, completedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE idempotency_records
		 SET response_code = ?, response_body = ?, completed_at = ?
		 WHERE key = ?`,
		statusCode,
		body,
		completedAt,
		key,
	).Error
}

func (r *repo) DeleteIncomplete(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM idempotency_records
		 WHERE key = ? AND completed_at IS NULL`,
		key,
	).Error
}

func (r *repo) DeleteExpiredBefore(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM idempotency_records
		 WHERE expires_at < ?`,
		now,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
