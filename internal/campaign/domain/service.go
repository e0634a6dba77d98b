package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/opencollect/donorbase/internal/transaction/domain"
	"gorm.io/gorm"
)

type CreateRequest struct {
	Name       string  `json:"name"`
	Currency   string  `json:"currency"`
	Goal       int64   `json:"goal"`
	Milestones []int64 `json:"milestones,omitempty"`
	ActorID    string  `json:"actor_id"`
}

type Response struct {
	Campaign   Campaign            `json:"campaign"`
	Milestones []CampaignMilestone `json:"milestones,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
}

// Aggregator recomputes campaign totals when a contribution reaches its
// terminal success state. ApplyCompletion is only invoked from the webhook
// reconciler's single transition point, which is what makes it re-entrant
// safe: a replayed callback never reaches it twice for the same record.
type Aggregator interface {
	ApplyCompletion(ctx context.Context, record *transactiondomain.MonetaryRecord) error
	ApplyRefund(ctx context.Context, record *transactiondomain.MonetaryRecord) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, campaign *Campaign) error
	InsertMilestones(ctx context.Context, db *gorm.DB, milestones []CampaignMilestone) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Campaign, error)
	ListMilestones(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) ([]CampaignMilestone, error)

	// ClaimPosting inserts the per-record aggregation marker; false means
	// the record was already folded in.
	ClaimPosting(ctx context.Context, db *gorm.DB, posting *CampaignPosting) (bool, error)

	// AddContribution folds one completed contribution into the totals.
	AddContribution(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, amount int64, at time.Time) error
	SubtractContribution(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, amount int64, at time.Time) error
	RecordContributor(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, actorID string, at time.Time) (bool, error)
	IncrementContributors(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, at time.Time) error
	MarkReachedMilestones(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, at time.Time) error
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidGoal     = errors.New("invalid_goal")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("campaign_not_found")
)
