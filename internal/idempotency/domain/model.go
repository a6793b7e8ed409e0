package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Record is the durable tier of the idempotency gate. A row is claimed
// before processing starts and completed with the response afterwards, so a
// retry arriving between the two sees an in-flight claim rather than a miss.
type Record struct {
	Key          string         `json:"key" gorm:"primaryKey;type:text"`
	ResponseCode int            `json:"response_code" gorm:"not null;default:0"`
	ResponseBody datatypes.JSON `json:"response_body"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null"`
	ExpiresAt    time.Time      `json:"expires_at" gorm:"not null;index"`
	CompletedAt  *time.Time     `json:"completed_at"`
}

func (Record) TableName() string { return "idempotency_records" }

// DeriveKey returns the caller-provided key when present, otherwise a
// deterministic digest of the raw request body.
func DeriveKey(provided string, body []byte) string {
	provided = strings.TrimSpace(provided)
	if provided != "" {
		return provided
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
