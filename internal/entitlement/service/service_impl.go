package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/opencollect/donorbase/internal/audit/domain"
	"github.com/opencollect/donorbase/internal/clock"
	"github.com/opencollect/donorbase/internal/config"
	"github.com/opencollect/donorbase/internal/entitlement/domain"
	"github.com/opencollect/donorbase/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Catalog  *config.PlanCatalogHolder
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	catalog  *config.PlanCatalogHolder
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("entitlement.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		catalog:  p.Catalog,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) lookupPlan(name string) (domain.Plan, error) {
	planCfg, ok := s.catalog.Get().Find(name)
	if !ok {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	plan := domain.Plan{
		Name:   strings.ToLower(strings.TrimSpace(planCfg.Name)),
		Price:  planCfg.Price,
		Limits: map[domain.ResourceKind]int64{},
	}
	for raw, limit := range planCfg.Limits {
		kind, ok := domain.ParseResourceKind(raw)
		if !ok {
			continue
		}
		plan.Limits[kind] = limit
	}
	return plan, nil
}

// Subscribe activates the plan for the tenant. Any prior active entitlement
// is cancelled in the same transaction, so a concurrent reader never sees
// two active rows.
func (s *Service) Subscribe(ctx context.Context, req domain.SubscribeRequest) (*domain.TenantEntitlement, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	plan, err := s.lookupPlan(req.PlanName)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	periodEnd := now.AddDate(0, 1, 0)
	if req.PeriodEnd != nil {
		if !req.PeriodEnd.After(now) {
			return nil, domain.ErrInvalidPeriod
		}
		periodEnd = req.PeriodEnd.UTC()
	}

	entitlement := &domain.TenantEntitlement{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		PlanName:    plan.Name,
		Status:      domain.EntitlementStatusActive,
		PeriodStart: now,
		PeriodEnd:   periodEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CancelActive(ctx, tx, tenantID, now); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, entitlement); err != nil {
			return err
		}
		return s.seedCounters(ctx, tx, tenantID, plan, now)
	})
	if err != nil {
		return nil, err
	}

	s.writeAuditLog(ctx, tenantID, req.ActorID, "entitlement.subscribed", map[string]any{
		"plan":           plan.Name,
		"entitlement_id": entitlement.ID.String(),
	})
	return entitlement, nil
}

// ChangePlan validates the target plan against current usage before
// activating it. The first violating resource aborts the whole change; no
// partial mutation survives a rejection.
func (s *Service) ChangePlan(ctx context.Context, req domain.ChangePlanRequest) (*domain.TenantEntitlement, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	plan, err := s.lookupPlan(req.PlanName)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindActive(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNoActiveEntitlement
	}

	usage, err := s.repo.ListUsage(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if err := validatePlanChange(plan, usage); err != nil {
		return nil, err
	}

	entitlement, err := s.Subscribe(ctx, domain.SubscribeRequest{
		PlanName: plan.Name,
		ActorID:  req.ActorID,
	})
	if err != nil {
		return nil, err
	}
	s.writeAuditLog(ctx, tenantID, req.ActorID, "entitlement.plan_changed", map[string]any{
		"from_plan": current.PlanName,
		"to_plan":   plan.Name,
	})
	return entitlement, nil
}

// validatePlanChange returns on the first resource whose usage exceeds the
// new ceiling. The early return is load-bearing: the change must abort, not
// continue scanning.
func validatePlanChange(plan domain.Plan, usage []domain.UsageCounter) error {
	byResource := make(map[domain.ResourceKind]int64, len(usage))
	for _, counter := range usage {
		byResource[counter.Resource] = counter.CurrentCount
	}
	for _, kind := range domain.ResourceKinds() {
		limit, ok := plan.Limits[kind]
		if !ok || limit == 0 {
			continue
		}
		if current := byResource[kind]; current > limit {
			return &domain.DowngradeError{Resource: kind, Current: current, NewLimit: limit}
		}
	}
	return nil
}

func (s *Service) Renew(ctx context.Context, until time.Time) (*domain.TenantEntitlement, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	current, err := s.repo.FindActive(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNoActiveEntitlement
	}
	if !until.After(current.PeriodEnd) {
		return nil, domain.ErrInvalidPeriod
	}

	now := s.clock.Now()
	if _, err := s.repo.ExtendPeriod(ctx, s.db, current.ID, until.UTC(), now); err != nil {
		return nil, err
	}
	return s.repo.FindActive(ctx, s.db, tenantID)
}

func (s *Service) Cancel(ctx context.Context, req domain.CancelRequest) (*domain.TenantEntitlement, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	current, err := s.repo.FindActive(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNoActiveEntitlement
	}

	now := s.clock.Now()
	effectiveAt := current.PeriodEnd
	if req.EffectiveAt != nil {
		effectiveAt = req.EffectiveAt.UTC()
	}
	if _, err := s.repo.MarkCancellation(ctx, s.db, current.ID, now, effectiveAt, strings.TrimSpace(req.Reason)); err != nil {
		return nil, err
	}

	s.writeAuditLog(ctx, tenantID, req.ActorID, "entitlement.cancellation_requested", map[string]any{
		"plan":         current.PlanName,
		"effective_at": effectiveAt.Format(time.RFC3339),
	})
	return s.repo.FindActive(ctx, s.db, tenantID)
}

func (s *Service) GetActive(ctx context.Context) (*domain.EntitlementResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	current, err := s.repo.FindActive(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNoActiveEntitlement
	}
	usage, err := s.repo.ListUsage(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	return &domain.EntitlementResponse{Entitlement: *current, Usage: usage}, nil
}

func (s *Service) CanPerform(ctx context.Context, resource domain.ResourceKind) (bool, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return false, domain.ErrInvalidTenant
	}
	counter, err := s.repo.FindCounter(ctx, s.db, tenantID, resource)
	if err != nil {
		return false, err
	}
	if counter == nil {
		return false, domain.ErrNoActiveEntitlement
	}
	if counter.Unlimited() {
		return true, nil
	}
	return counter.CurrentCount < counter.LimitCount, nil
}

// Increment is the admission check itself: the guarded atomic add either
// claims the slot or refuses it, so two racing creations cannot both pass.
func (s *Service) Increment(ctx context.Context, resource domain.ResourceKind, amount int64) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	if amount <= 0 {
		amount = 1
	}

	applied, err := s.repo.TryIncrement(ctx, s.db, tenantID, resource, amount, s.clock.Now())
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	counter, err := s.repo.FindCounter(ctx, s.db, tenantID, resource)
	if err != nil {
		return err
	}
	if counter == nil {
		return domain.ErrNoActiveEntitlement
	}
	return &domain.LimitError{
		Resource: resource,
		Current:  counter.CurrentCount,
		Limit:    counter.LimitCount,
	}
}

func (s *Service) Decrement(ctx context.Context, resource domain.ResourceKind, amount int64) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	if amount <= 0 {
		amount = 1
	}
	return s.repo.Decrement(ctx, s.db, tenantID, resource, amount, s.clock.Now())
}

func (s *Service) seedCounters(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, plan domain.Plan, now time.Time) error {
	for _, kind := range domain.ResourceKinds() {
		limit := plan.Limits[kind]
		counter := &domain.UsageCounter{
			TenantID:     tenantID,
			Resource:     kind,
			CurrentCount: 0,
			LimitCount:   limit,
			UpdatedAt:    now,
		}
		if err := s.repo.UpsertCounter(ctx, tx, counter); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) writeAuditLog(ctx context.Context, tenantID snowflake.ID, actorID string, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	var actor *string
	if trimmed := strings.TrimSpace(actorID); trimmed != "" {
		actor = &trimmed
	}
	if err := s.auditSvc.Log(ctx, &tenantID, actor, action, "tenant_entitlement", nil, metadata); err != nil {
		s.log.Warn("failed to write entitlement audit log", zap.String("action", action), zap.Error(err))
	}
}
