package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pledgekit/fundway/internal/clock"
	"github.com/pledgekit/fundway/internal/config"
	obsmetrics "github.com/pledgekit/fundway/internal/observability/metrics"
	outboxdomain "github.com/pledgekit/fundway/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RelayParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Config    config.Config
	Repo      outboxdomain.Repository
	Publisher outboxdomain.Publisher
}

// Relay drains committed outbox rows into the event stream. Each batch runs
// in one transaction so a crashed relay releases its row locks and another
// instance picks the rows up unchanged.
type Relay struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      outboxdomain.Repository
	publisher outboxdomain.Publisher

	batchSize  int
	maxRetries int
}

func NewRelay(p RelayParams) *Relay {
	return &Relay{
		db:         p.DB,
		log:        p.Log.Named("outbox.relay"),
		clock:      p.Clock,
		repo:       p.Repo,
		publisher:  p.Publisher,
		batchSize:  p.Config.Outbox.BatchSize,
		maxRetries: p.Config.Outbox.MaxRetries,
	}
}

// ProcessBatch publishes one batch of pending events and returns how many
// were delivered. Publish failures increment retry_count and leave the row
// pending; rows that exhaust retries or carry broken payloads are parked.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	published := 0

	err := r.db.Transaction(func(tx *gorm.DB) error {
		events, err := r.repo.FetchBatch(ctx, tx, r.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		relayMetrics := obsmetrics.Relay()
		now := r.clock.Now()
		for i := range events {
			event := &events[i]

			if !json.Valid(event.Payload) {
				if err := r.park(ctx, tx, event, "malformed payload"); err != nil {
					return err
				}
				continue
			}

			if err := r.publisher.Publish(ctx, event); err != nil {
				r.log.Warn("publish failed",
					zap.String("event_id", event.ID.String()),
					zap.String("event_type", event.EventType),
					zap.Int("retry_count", event.RetryCount),
					zap.Error(err),
				)
				relayMetrics.IncPublishFailed()
				if event.RetryCount+1 >= r.maxRetries {
					if parkErr := r.park(ctx, tx, event, err.Error()); parkErr != nil {
						return parkErr
					}
					continue
				}
				if retryErr := r.repo.IncrementRetry(ctx, tx, event.ID, err.Error()); retryErr != nil {
					return retryErr
				}
				continue
			}

			if err := r.repo.MarkProcessed(ctx, tx, event.ID, now); err != nil {
				return err
			}
			published++
			relayMetrics.IncPublished()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.observeLag(ctx)
	return published, nil
}

func (r *Relay) park(ctx context.Context, tx *gorm.DB, event *outboxdomain.OutboxEvent, reason string) error {
	r.log.Error("parking outbox event",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.Int("retry_count", event.RetryCount),
		zap.String("reason", reason),
	)
	if err := r.repo.Park(ctx, tx, event.ID, r.clock.Now(), reason); err != nil {
		return err
	}
	obsmetrics.Relay().IncParked()
	return nil
}

func (r *Relay) observeLag(ctx context.Context) {
	oldest, err := r.repo.OldestPendingCreatedAt(ctx, r.db)
	if err != nil || oldest == nil {
		return
	}
	age := r.clock.Now().Sub(*oldest)
	if age < 0 {
		age = 0
	}
	obsmetrics.Relay().ObserveOldestEventAge(age)
}

// Cleanup removes processed rows older than the retention window.
func (r *Relay) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := r.clock.Now().Add(-retention)
	deleted, err := r.repo.DeleteProcessedBefore(ctx, r.db, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.log.Info("pruned processed outbox events",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}
