package broker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pledgekit/fundway/internal/config"
	"github.com/pledgekit/fundway/internal/outbox/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamPublisher appends outbox events to a redis stream. Consumers read
// through consumer groups so each group sees every event exactly once.
type StreamPublisher struct {
	client  *redis.Client
	stream  string
	timeout time.Duration
}

func NewStreamPublisher(client *redis.Client, cfg config.Config) *StreamPublisher {
	return &StreamPublisher{
		client:  client,
		stream:  cfg.Outbox.Stream,
		timeout: cfg.Outbox.PublishTimeout,
	}
}

func (p *StreamPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}
	if !json.Valid(event.Payload) {
		return domain.ErrInvalidPayload
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":       event.ID.String(),
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
			"event_type":     event.EventType,
			"payload":        string(event.Payload),
			"occurred_at":    strconv.FormatInt(event.CreatedAt.UTC().UnixMilli(), 10),
		},
	}).Err()
}

// Message is one entry read from the event stream.
type Message struct {
	StreamID      string
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	OccurredAt    time.Time
}

// Handler processes a single stream message. A nil return acknowledges the
// entry; an error leaves it pending for redelivery.
type Handler func(ctx context.Context, msg Message) error

// StreamConsumer reads the event stream through a consumer group.
type StreamConsumer struct {
	client   *redis.Client
	log      *zap.Logger
	stream   string
	group    string
	consumer string
}

func NewStreamConsumer(client *redis.Client, log *zap.Logger, stream, group, consumer string) *StreamConsumer {
	return &StreamConsumer{
		client:   client,
		log:      log.Named("outbox.consumer"),
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
}

// Run blocks until ctx is cancelled, dispatching each entry to handler.
func (c *StreamConsumer) Run(ctx context.Context, handler Handler) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    32,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("stream read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				msg := decodeMessage(entry)
				if err := handler(ctx, msg); err != nil {
					c.log.Warn("stream handler failed",
						zap.String("stream_id", msg.StreamID),
						zap.String("event_type", msg.EventType),
						zap.Error(err),
					)
					continue
				}
				if err := c.client.XAck(ctx, c.stream, c.group, entry.ID).Err(); err != nil {
					c.log.Warn("stream ack failed", zap.String("stream_id", entry.ID), zap.Error(err))
				}
			}
		}
	}
}

func (c *StreamConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func decodeMessage(entry redis.XMessage) Message {
	msg := Message{StreamID: entry.ID}
	if v, ok := entry.Values["event_id"].(string); ok {
		msg.EventID = v
	}
	if v, ok := entry.Values["aggregate_type"].(string); ok {
		msg.AggregateType = v
	}
	if v, ok := entry.Values["aggregate_id"].(string); ok {
		msg.AggregateID = v
	}
	if v, ok := entry.Values["event_type"].(string); ok {
		msg.EventType = v
	}
	if v, ok := entry.Values["payload"].(string); ok {
		msg.Payload = []byte(v)
	}
	if v, ok := entry.Values["occurred_at"].(string); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			msg.OccurredAt = time.UnixMilli(ms).UTC()
		}
	}
	return msg
}
