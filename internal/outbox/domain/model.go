package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OutboxEvent is a pending integration event written in the same database
// transaction as the domain change it describes. The relay publishes it to
// the event stream after commit.
type OutboxEvent struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	AggregateType string         `json:"aggregate_type" gorm:"type:text;not null"`
	AggregateID   string         `json:"aggregate_id" gorm:"type:text;not null"`
	EventType     string         `json:"event_type" gorm:"type:text;not null"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
	ProcessedAt   *time.Time     `json:"processed_at"`
	RetryCount    int            `json:"retry_count" gorm:"not null;default:0"`
	ParkedAt      *time.Time     `json:"parked_at"`
	LastError     string         `json:"last_error" gorm:"type:text"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

const (
	AggregatePledge  = "pledge"
	AggregatePayment = "payment"
)

const (
	EventTypePledgeCreated   = "pledge.created"
	EventTypePaymentCaptured = "payment.captured"
	EventTypePaymentFailed   = "payment.failed"
	EventTypePaymentRefunded = "payment.refunded"
)
