package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/pledgekit/fundway/internal/config"
	"github.com/pledgekit/fundway/internal/outbox/broker"
	outboxdomain "github.com/pledgekit/fundway/internal/outbox/domain"
	"github.com/pledgekit/fundway/internal/totals/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ConsumerParams struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Redis  *redis.Client
	Totals domain.Service
}

// Consumer invalidates campaign totals when a payment outcome changes the
// aggregate.
type Consumer struct {
	log    *zap.Logger
	stream *broker.StreamConsumer
	totals domain.Service
}

func NewConsumer(p ConsumerParams) *Consumer {
	return &Consumer{
		log: p.Log.Named("totals.consumer"),
		stream: broker.NewStreamConsumer(
			p.Redis,
			p.Log,
			p.Config.Outbox.Stream,
			p.Config.Totals.ConsumerGroup,
			p.Config.Totals.ConsumerName,
		),
		totals: p.Totals,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	return c.stream.Run(ctx, c.handle)
}

func (c *Consumer) handle(ctx context.Context, msg broker.Message) error {
	switch msg.EventType {
	case outboxdomain.EventTypePaymentCaptured, outboxdomain.EventTypePaymentRefunded:
	default:
		return nil
	}

	var payload struct {
		CampaignID string `json:"campaign_id"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.log.Warn("dropping unparseable payment outcome",
			zap.String("stream_id", msg.StreamID),
			zap.Error(err),
		)
		return nil
	}

	campaignID, err := snowflake.ParseString(payload.CampaignID)
	if err != nil || campaignID == 0 {
		c.log.Warn("dropping payment outcome with bad campaign id",
			zap.String("stream_id", msg.StreamID),
			zap.String("campaign_id", payload.CampaignID),
		)
		return nil
	}

	return c.totals.Invalidate(ctx, campaignID)
}
