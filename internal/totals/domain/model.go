package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Totals is the aggregate a campaign page renders. Source names the tier
// that answered: cache, snapshot or base.
type Totals struct {
	CampaignID  snowflake.ID `json:"campaign_id"`
	TotalAmount int64        `json:"total_amount"`
	PledgeCount int64        `json:"pledge_count"`
	DonorCount  int64        `json:"donor_count"`
	Source      string       `json:"source"`
	ComputedAt  time.Time    `json:"computed_at"`
}

const (
	SourceCache    = "cache"
	SourceSnapshot = "snapshot"
	SourceBase     = "base"
)

// AggregateSnapshot is the precomputed middle tier. Stale rows keep serving
// until the refresher recomputes them, so readers never block on aggregation.
type AggregateSnapshot struct {
	CampaignID  snowflake.ID `json:"campaign_id" gorm:"primaryKey"`
	TotalAmount int64        `json:"total_amount" gorm:"not null"`
	PledgeCount int64        `json:"pledge_count" gorm:"not null"`
	DonorCount  int64        `json:"donor_count" gorm:"not null;default:0"`
	Stale       bool         `json:"stale" gorm:"not null;default:false"`
	ComputedAt  time.Time    `json:"computed_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (AggregateSnapshot) TableName() string { return "aggregate_snapshots" }
