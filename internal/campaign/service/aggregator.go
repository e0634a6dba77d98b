package service

import (
	"context"

	"github.com/opencollect/donorbase/internal/campaign/domain"
	"github.com/opencollect/donorbase/internal/clock"
	transactiondomain "github.com/opencollect/donorbase/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AggregatorParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

// Aggregator folds terminal contributions into campaign totals and
// milestone stamps. It is only called from the reconciler's transition
// point, never directly from request handlers.
type Aggregator struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func NewAggregator(p AggregatorParams) domain.Aggregator {
	return &Aggregator{
		db:    p.DB,
		log:   p.Log.Named("campaign.aggregator"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (a *Aggregator) ApplyCompletion(ctx context.Context, record *transactiondomain.MonetaryRecord) error {
	if record == nil || record.CampaignID == nil || *record.CampaignID == 0 {
		return nil
	}
	campaignID := *record.CampaignID
	amount := record.Amount
	if record.PaidAmount != nil && *record.PaidAmount > 0 {
		amount = *record.PaidAmount
	}
	now := a.clock.Now()

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := a.repo.ClaimPosting(ctx, tx, &domain.CampaignPosting{
			RecordID:   record.ID,
			CampaignID: campaignID,
			Direction:  "credit",
			Amount:     amount,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		if err := a.repo.AddContribution(ctx, tx, campaignID, amount, now); err != nil {
			return err
		}
		if record.ActorID != nil && *record.ActorID != "" {
			firstTime, err := a.repo.RecordContributor(ctx, tx, campaignID, *record.ActorID, now)
			if err != nil {
				return err
			}
			if firstTime {
				if err := a.repo.IncrementContributors(ctx, tx, campaignID, now); err != nil {
					return err
				}
			}
		}
		return a.repo.MarkReachedMilestones(ctx, tx, campaignID, now)
	})
}

func (a *Aggregator) ApplyRefund(ctx context.Context, record *transactiondomain.MonetaryRecord) error {
	if record == nil || record.CampaignID == nil || *record.CampaignID == 0 {
		return nil
	}
	amount := record.Amount
	if record.PaidAmount != nil && *record.PaidAmount > 0 {
		amount = *record.PaidAmount
	}
	now := a.clock.Now()
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := a.repo.ClaimPosting(ctx, tx, &domain.CampaignPosting{
			RecordID:   record.ID,
			CampaignID: *record.CampaignID,
			Direction:  "debit",
			Amount:     amount,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		return a.repo.SubtractContribution(ctx, tx, *record.CampaignID, amount, now)
	})
}
