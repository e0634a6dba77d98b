package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencollect/donorbase/internal/campaign/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, campaign *domain.Campaign) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO campaigns (
			id, tenant_id, name, currency, goal,
			raised_amount, contribution_count, contributor_count,
			largest_contribution, average_contribution,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		campaign.ID,
		campaign.TenantID,
		campaign.Name,
		campaign.Currency,
		campaign.Goal,
		campaign.RaisedAmount,
		campaign.ContributionCount,
		campaign.ContributorCount,
		campaign.LargestContribution,
		campaign.AverageContribution,
		campaign.CreatedAt,
		campaign.UpdatedAt,
	).Error
}

func (r *repo) InsertMilestones(ctx context.Context, db *gorm.DB, milestones []domain.CampaignMilestone) error {
	for _, milestone := range milestones {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO campaign_milestones (id, campaign_id, threshold, reached_at, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			milestone.ID,
			milestone.CampaignID,
			milestone.Threshold,
			milestone.ReachedAt,
			milestone.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Campaign, error) {
	var item domain.Campaign
	stmt := db.WithContext(ctx).Model(&domain.Campaign{}).Where("id = ?", id)
	if tenantID != 0 {
		stmt = stmt.Where("tenant_id = ?", tenantID)
	}
	if err := stmt.Limit(1).Find(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListMilestones(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) ([]domain.CampaignMilestone, error) {
	var items []domain.CampaignMilestone
	err := db.WithContext(ctx).Model(&domain.CampaignMilestone{}).
		Where("campaign_id = ?", campaignID).
		Order("threshold asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ClaimPosting(ctx context.Context, db *gorm.DB, posting *domain.CampaignPosting) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO campaign_postings (record_id, campaign_id, direction, amount, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (record_id) DO NOTHING`,
		posting.RecordID,
		posting.CampaignID,
		posting.Direction,
		posting.Amount,
		posting.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AddContribution(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, amount int64, at time.Time) error {
	if err := db.WithContext(ctx).Exec(
		`UPDATE campaigns
		 SET raised_amount = raised_amount + ?,
		     contribution_count = contribution_count + 1,
		     largest_contribution = CASE WHEN ? > largest_contribution THEN ? ELSE largest_contribution END,
		     updated_at = ?
		 WHERE id = ?`,
		amount,
		amount,
		amount,
		at,
		campaignID,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE campaigns
		 SET average_contribution = raised_amount / contribution_count
		 WHERE id = ? AND contribution_count > 0`,
		campaignID,
	).Error
}

func (r *repo) SubtractContribution(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, amount int64, at time.Time) error {
	if err := db.WithContext(ctx).Exec(
		`UPDATE campaigns
		 SET raised_amount = CASE WHEN raised_amount > ? THEN raised_amount - ? ELSE 0 END,
		     updated_at = ?
		 WHERE id = ?`,
		amount,
		amount,
		at,
		campaignID,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE campaigns
		 SET average_contribution = CASE WHEN contribution_count > 0 THEN raised_amount / contribution_count ELSE 0 END
		 WHERE id = ?`,
		campaignID,
	).Error
}

func (r *repo) RecordContributor(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, actorID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO campaign_contributors (campaign_id, actor_id, first_seen)
		 VALUES (?, ?, ?)
		 ON CONFLICT (campaign_id, actor_id) DO NOTHING`,
		campaignID,
		actorID,
		at,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) IncrementContributors(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE campaigns
		 SET contributor_count = contributor_count + 1, updated_at = ?
		 WHERE id = ?`,
		at,
		campaignID,
	).Error
}

func (r *repo) MarkReachedMilestones(ctx context.Context, db *gorm.DB, campaignID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE campaign_milestones
		 SET reached_at = ?
		 WHERE campaign_id = ?
		   AND reached_at IS NULL
		   AND threshold <= (SELECT raised_amount FROM campaigns WHERE id = ?)`,
		at,
		campaignID,
		campaignID,
	).Error
}
