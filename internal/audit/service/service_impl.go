package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/opencollect/donorbase/internal/audit/domain"
	"github.com/opencollect/donorbase/internal/clock"
	"github.com/opencollect/donorbase/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Log(ctx context.Context, tenantID *snowflake.ID, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return domain.ErrInvalidAction
	}

	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	resolvedTenantID := s.resolveTenantID(ctx, tenantID)

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := domain.AuditLog{
		ID:         s.genID.Generate(),
		TenantID:   resolvedTenantID,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to insert audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	if filter.TenantID == 0 {
		tenantID, ok := tenantctx.TenantIDFromContext(ctx)
		if !ok || tenantID == 0 {
			return nil, domain.ErrInvalidTenant
		}
		filter.TenantID = tenantID
	}
	if filter.StartAt != nil && filter.EndAt != nil && filter.EndAt.Before(*filter.StartAt) {
		return nil, domain.ErrInvalidTimeRange
	}
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) resolveTenantID(ctx context.Context, tenantID *snowflake.ID) snowflake.ID {
	if tenantID != nil && *tenantID != 0 {
		return *tenantID
	}
	if resolved, ok := tenantctx.TenantIDFromContext(ctx); ok {
		return resolved
	}
	return 0
}
