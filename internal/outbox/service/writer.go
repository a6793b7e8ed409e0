package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pledgekit/fundway/internal/clock"
	outboxdomain "github.com/pledgekit/fundway/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WriterParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  outboxdomain.Repository
}

type Writer struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  outboxdomain.Repository
}

func NewWriter(p WriterParams) outboxdomain.Writer {
	return &Writer{
		log:   p.Log.Named("outbox.writer"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Append writes an event row on the caller's transaction. The event becomes
// visible to the relay only when that transaction commits.
func (w *Writer) Append(ctx context.Context, tx *gorm.DB, aggregateType, aggregateID, eventType string, payload any) (*outboxdomain.OutboxEvent, error) {
	aggregateType = strings.TrimSpace(aggregateType)
	aggregateID = strings.TrimSpace(aggregateID)
	eventType = strings.TrimSpace(eventType)
	if aggregateType == "" || aggregateID == "" || eventType == "" {
		return nil, outboxdomain.ErrInvalidEvent
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, outboxdomain.ErrInvalidPayload
	}

	event := &outboxdomain.OutboxEvent{
		ID:            w.genID.Generate(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       datatypes.JSON(body),
		CreatedAt:     w.clock.Now(),
	}

	if err := w.repo.Insert(ctx, tx, event); err != nil {
		return nil, err
	}
	return event, nil
}
