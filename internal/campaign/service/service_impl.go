package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/opencollect/donorbase/internal/campaign/domain"
	"github.com/opencollect/donorbase/internal/clock"
	entitlementdomain "github.com/opencollect/donorbase/internal/entitlement/domain"
	"github.com/opencollect/donorbase/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           domain.Repository
	EntitlementSvc entitlementdomain.Service `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           domain.Repository
	entitlementSvc entitlementdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("campaign.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		entitlementSvc: p.EntitlementSvc,
	}
}

// Create admits the campaign through the entitlement counter before
// inserting it; the increment is the quota check. A failed insert releases
// the claimed slot.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Goal < 0 {
		return nil, domain.ErrInvalidGoal
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}

	if s.entitlementSvc != nil {
		if err := s.entitlementSvc.Increment(ctx, entitlementdomain.ResourceCampaigns, 1); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	campaign := &domain.Campaign{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Name:      name,
		Currency:  currency,
		Goal:      req.Goal,
		CreatedAt: now,
		UpdatedAt: now,
	}

	milestones := make([]domain.CampaignMilestone, 0, len(req.Milestones))
	for _, threshold := range req.Milestones {
		if threshold <= 0 {
			continue
		}
		milestones = append(milestones, domain.CampaignMilestone{
			ID:         s.genID.Generate(),
			CampaignID: campaign.ID,
			Threshold:  threshold,
			CreatedAt:  now,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, campaign); err != nil {
			return err
		}
		return s.repo.InsertMilestones(ctx, tx, milestones)
	})
	if err != nil {
		if s.entitlementSvc != nil {
			if decErr := s.entitlementSvc.Decrement(ctx, entitlementdomain.ResourceCampaigns, 1); decErr != nil {
				s.log.Warn("failed to release campaign quota after insert failure", zap.Error(decErr))
			}
		}
		return nil, err
	}

	return &domain.Response{Campaign: *campaign, Milestones: milestones}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	tenantID, _ := tenantctx.TenantIDFromContext(ctx)
	campaignID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || campaignID == 0 {
		return nil, domain.ErrInvalidID
	}

	campaign, err := s.repo.FindByID(ctx, s.db, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, domain.ErrNotFound
	}
	milestones, err := s.repo.ListMilestones(ctx, s.db, campaign.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Response{Campaign: *campaign, Milestones: milestones}, nil
}
