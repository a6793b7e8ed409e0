package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/pledgekit/fundway/internal/config"
	"github.com/pledgekit/fundway/internal/outbox/broker"
	outboxdomain "github.com/pledgekit/fundway/internal/outbox/domain"
	pledgedomain "github.com/pledgekit/fundway/internal/pledge/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const consumerGroup = "pledge-settlement"

type ConsumerParams struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Redis   *redis.Client
	Pledges pledgedomain.Service
}

// Consumer settles pledges from payment outcome events on the stream.
type Consumer struct {
	log     *zap.Logger
	stream  *broker.StreamConsumer
	pledges pledgedomain.Service
}

func NewConsumer(p ConsumerParams) *Consumer {
	return &Consumer{
		log: p.Log.Named("pledge.consumer"),
		stream: broker.NewStreamConsumer(
			p.Redis,
			p.Log,
			p.Config.Outbox.Stream,
			consumerGroup,
			p.Config.Totals.ConsumerName,
		),
		pledges: p.Pledges,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	return c.stream.Run(ctx, c.handle)
}

type paymentOutcome struct {
	PledgeID  string `json:"pledge_id"`
	NewStatus string `json:"new_status"`
}

func (c *Consumer) handle(ctx context.Context, msg broker.Message) error {
	var status pledgedomain.Status
	switch msg.EventType {
	case outboxdomain.EventTypePaymentCaptured:
		status = pledgedomain.StatusCompleted
	case outboxdomain.EventTypePaymentFailed:
		status = pledgedomain.StatusFailed
	case outboxdomain.EventTypePaymentRefunded:
		status = pledgedomain.StatusRefunded
	default:
		return nil
	}

	var outcome paymentOutcome
	if err := json.Unmarshal(msg.Payload, &outcome); err != nil {
		c.log.Warn("dropping unparseable payment outcome",
			zap.String("stream_id", msg.StreamID),
			zap.Error(err),
		)
		return nil
	}

	pledgeID, err := snowflake.ParseString(outcome.PledgeID)
	if err != nil {
		c.log.Warn("dropping payment outcome with bad pledge id",
			zap.String("stream_id", msg.StreamID),
			zap.String("pledge_id", outcome.PledgeID),
		)
		return nil
	}

	return c.pledges.Settle(ctx, pledgeID, status, msg.OccurredAt)
}
