package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pledgekit/fundway/internal/outbox/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.OutboxEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, event_type, payload,
			created_at, processed_at, retry_count, parked_at, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Payload,
		event.CreatedAt,
		event.ProcessedAt,
		event.RetryCount,
		event.ParkedAt,
		event.LastError,
	).Error
}

func (r *repo) FetchBatch(ctx context.Context, db *gorm.DB, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.OutboxEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, aggregate_type, aggregate_id, event_type, payload,
			created_at, processed_at, retry_count, parked_at, last_error
		 FROM outbox_events
		 WHERE processed_at IS NULL AND parked_at IS NULL
		 ORDER BY id
		 LIMIT ?`+lockSuffix(db),
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// lockSuffix returns the row locking clause for dialects that support it.
// SQLite serializes writers at the connection level, so no clause is needed.
func lockSuffix(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return `
		 FOR UPDATE SKIP LOCKED`
	}
	return ""
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events
		 SET processed_at = ?
		 WHERE id = ? AND processed_at IS NULL`,
		processedAt,
		id,
	).Error
}

func (r *repo) IncrementRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events
		 SET retry_count = retry_count + 1, last_error = ?
		 WHERE id = ? AND processed_at IS NULL`,
		lastError,
		id,
	).Error
}

func (r *repo) Park(ctx context.Context, db *gorm.DB, id snowflake.ID, parkedAt time.Time, lastError string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events
		 SET parked_at = ?, last_error = ?
		 WHERE id = ? AND processed_at IS NULL`,
		parkedAt,
		lastError,
		id,
	).Error
}

func (r *repo) DeleteProcessedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM outbox_events
		 WHERE processed_at IS NOT NULL AND processed_at < ?`,
		cutoff,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) CountPending(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM outbox_events
		 WHERE processed_at IS NULL AND parked_at IS NULL`,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) OldestPendingCreatedAt(ctx context.Context, db *gorm.DB) (*time.Time, error) {
	var item struct {
		CreatedAt *time.Time `gorm:"column:created_at"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT MIN(created_at) AS created_at
		 FROM outbox_events
		 WHERE processed_at IS NULL AND parked_at IS NULL`,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	return item.CreatedAt, nil
}
