package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

// Pledge is a supporter's commitment to a campaign. Rows are never deleted;
// the payment lifecycle moves them through the statuses above.
type Pledge struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	CampaignID snowflake.ID   `json:"campaign_id" gorm:"not null;index"`
	DonorEmail string         `json:"donor_email" gorm:"type:text;not null"`
	Amount     int64          `json:"amount" gorm:"not null"`
	Currency   string         `json:"currency" gorm:"type:text;not null"`
	Status     Status         `json:"status" gorm:"type:text;not null"`
	Version    int            `json:"version" gorm:"not null;default:1"`
	Metadata   datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"not null"`
}

func (Pledge) TableName() string { return "pledges" }
