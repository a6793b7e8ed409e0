package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrInvalidEvent   = errors.New("invalid outbox event")
	ErrInvalidPayload = errors.New("invalid outbox payload")
)

// Publisher delivers a committed outbox event to the downstream broker.
type Publisher interface {
	Publish(ctx context.Context, event *OutboxEvent) error
}

// Writer appends events inside the caller's transaction so the domain write
// and the event row commit or roll back together.
type Writer interface {
	Append(ctx context.Context, tx *gorm.DB, aggregateType, aggregateID, eventType string, payload any) (*OutboxEvent, error)
}
