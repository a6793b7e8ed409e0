package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusInitiated  Status = "INITIATED"
	StatusAuthorized Status = "AUTHORIZED"
	StatusCaptured   Status = "CAPTURED"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
)

// transitions is the closed set of legal status moves. FAILED and REFUNDED
// have no outgoing edges.
var transitions = map[Status][]Status{
	StatusInitiated:  {StatusAuthorized, StatusFailed},
	StatusAuthorized: {StatusCaptured, StatusFailed, StatusRefunded},
	StatusCaptured:   {StatusRefunded},
	StatusFailed:     {},
	StatusRefunded:   {},
}

func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is the authoritative record of one payment attempt. Status
// moves only along the transition table and version increases by exactly one
// per accepted transition.
type Transaction struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Reference string       `json:"reference" gorm:"type:text;not null;uniqueIndex"`
	PledgeID  snowflake.ID `json:"pledge_id" gorm:"not null;index"`
	Amount    int64        `json:"amount" gorm:"not null"`
	Currency  string       `json:"currency" gorm:"type:text;not null"`
	Status    Status       `json:"status" gorm:"type:text;not null"`
	Version   int          `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "payment_transactions" }

// StateTransition is the append-only audit trail. One row per accepted
// transition, written in the same transaction as the status change.
type StateTransition struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	TransactionID  snowflake.ID `json:"transaction_id" gorm:"not null;index"`
	FromStatus     Status       `json:"from_status" gorm:"type:text;not null"`
	ToStatus       Status       `json:"to_status" gorm:"type:text;not null"`
	EventID        string       `json:"event_id" gorm:"type:text"`
	EventTimestamp time.Time    `json:"event_timestamp" gorm:"not null"`
	ReceivedAt     time.Time    `json:"received_at" gorm:"not null"`
	Version        int          `json:"version" gorm:"not null"`
}

func (StateTransition) TableName() string { return "payment_state_transitions" }

// NewReference mints an opaque gateway style reference.
func NewReference() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return "pi_" + hex.EncodeToString(buf)
}
