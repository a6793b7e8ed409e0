package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *OutboxEvent) error
	// FetchBatch locks up to limit unprocessed, unparked events for the
	// calling transaction. Rows locked by a concurrent relay are skipped.
	FetchBatch(ctx context.Context, db *gorm.DB, limit int) ([]OutboxEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	IncrementRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string) error
	Park(ctx context.Context, db *gorm.DB, id snowflake.ID, parkedAt time.Time, lastError string) error
	DeleteProcessedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context, db *gorm.DB) (int64, error)
	OldestPendingCreatedAt(ctx context.Context, db *gorm.DB) (*time.Time, error)
}
