// Package domain contains campaign models and the aggregation service that
// folds completed contributions into campaign totals.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Campaign holds derived totals; they are only rewritten by the aggregator.
// Contributions reference the campaign by foreign key, the campaign never
// holds a live back-pointer.
type Campaign struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"column:tenant_id;not null;index"`
	Name     string       `gorm:"type:text;not null"`
	Currency string       `gorm:"type:text;not null"`
	Goal     int64        `gorm:"not null"`

	RaisedAmount        int64 `gorm:"not null"`
	ContributionCount   int64 `gorm:"not null"`
	ContributorCount    int64 `gorm:"not null"`
	LargestContribution int64 `gorm:"not null"`
	AverageContribution int64 `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Campaign) TableName() string { return "campaigns" }

// CampaignMilestone marks a threshold; ReachedAt is stamped once when the
// raised total first crosses it.
type CampaignMilestone struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	CampaignID snowflake.ID `gorm:"not null;index"`
	Threshold  int64        `gorm:"not null"`
	ReachedAt  *time.Time
	CreatedAt  time.Time `gorm:"not null"`
}

func (CampaignMilestone) TableName() string { return "campaign_milestones" }

// CampaignPosting claims a monetary record for aggregation. The unique
// record ID is what makes a replayed aggregation a no-op.
type CampaignPosting struct {
	RecordID   snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	CampaignID snowflake.ID `gorm:"not null;index"`
	Direction  string       `gorm:"type:text;not null"`
	Amount     int64        `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null"`
}

func (CampaignPosting) TableName() string { return "campaign_postings" }

// CampaignContributor is the reverse-lookup row for distinct contributor
// counting.
type CampaignContributor struct {
	CampaignID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	ActorID    string       `gorm:"primaryKey;type:text"`
	FirstSeen  time.Time    `gorm:"not null"`
}

func (CampaignContributor) TableName() string { return "campaign_contributors" }
