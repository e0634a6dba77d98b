package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/opencollect/donorbase/internal/audit/domain"
	campaigndomain "github.com/opencollect/donorbase/internal/campaign/domain"
	"github.com/opencollect/donorbase/internal/clock"
	"github.com/opencollect/donorbase/internal/config"
	gatewaydomain "github.com/opencollect/donorbase/internal/gateway/domain"
	"github.com/opencollect/donorbase/internal/tenantctx"
	"github.com/opencollect/donorbase/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Repo        domain.Repository
	Initializer gatewaydomain.Initializer `optional:"true"`
	AuditSvc    auditdomain.Service       `optional:"true"`
	Aggregator  campaigndomain.Aggregator `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	repo        domain.Repository
	initializer gatewaydomain.Initializer
	auditSvc    auditdomain.Service
	aggregator  campaigndomain.Aggregator
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("transaction.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Cfg,
		repo:        p.Repo,
		initializer: p.Initializer,
		auditSvc:    p.AuditSvc,
		aggregator:  p.Aggregator,
	}
}

func (s *Service) CreateContribution(ctx context.Context, req domain.CreateContributionRequest) (*domain.MonetaryRecord, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}

	// A retried initialization keyed by the same token returns the record
	// created by the first attempt instead of opening a second collection.
	token := strings.TrimSpace(req.IdempotencyToken)
	if token != "" {
		existing, err := s.repo.FindByIdempotencyToken(ctx, s.db, tenantID, token)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.Status == domain.StatusPending {
				return existing, s.initializeCollection(ctx, existing, token)
			}
			return existing, nil
		}
	}

	var campaignID *snowflake.ID
	if value := strings.TrimSpace(req.CampaignID); value != "" {
		parsed, err := snowflake.ParseString(value)
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		campaignID = &parsed
	}

	now := s.clock.Now()
	reference := uuid.NewString()
	record := &domain.MonetaryRecord{
		ID:                s.genID.Generate(),
		TenantID:          tenantID,
		CampaignID:        campaignID,
		Kind:              domain.KindContribution,
		Amount:            req.Amount,
		Currency:          currency,
		Category:          strings.TrimSpace(req.Category),
		Status:            domain.InitialStatus(domain.KindContribution),
		ExternalReference: &reference,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if token != "" {
		record.IdempotencyToken = &token
	}
	if actor := strings.TrimSpace(req.ActorID); actor != "" {
		record.ActorID = &actor
	}

	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domain.ErrDuplicateReference
	}

	return record, s.initializeCollection(ctx, record, token)
}

// initializeCollection asks the gateway to begin collection. A timeout is
// surfaced but leaves the record pending for a retried initialization or an
// out-of-band reconciliation sweep.
func (s *Service) initializeCollection(ctx context.Context, record *domain.MonetaryRecord, token string) error {
	if s.initializer == nil || record.ExternalReference == nil {
		return nil
	}
	_, err := s.initializer.InitializeCollection(ctx, gatewaydomain.InitializeRequest{
		TenantID:         record.TenantID.String(),
		Reference:        *record.ExternalReference,
		Amount:           record.Amount,
		Currency:         record.Currency,
		IdempotencyToken: token,
	})
	if err != nil {
		s.log.Warn("collection initialization failed",
			zap.String("reference", *record.ExternalReference),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) CreateSpendRequest(ctx context.Context, req domain.CreateSpendRequestRequest) (*domain.MonetaryRecord, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	record := &domain.MonetaryRecord{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Kind:      domain.KindSpendRequest,
		Amount:    req.Amount,
		Currency:  currency,
		Category:  strings.TrimSpace(req.Category),
		Status:    domain.InitialStatus(domain.KindSpendRequest),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actor := strings.TrimSpace(req.ActorID); actor != "" {
		record.ActorID = &actor
	}

	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domain.ErrDuplicateReference
	}
	return record, nil
}

func (s *Service) CreateManualEntry(ctx context.Context, req domain.CreateManualEntryRequest) (*domain.MonetaryRecord, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}

	var campaignID *snowflake.ID
	if value := strings.TrimSpace(req.CampaignID); value != "" {
		parsed, err := snowflake.ParseString(value)
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		campaignID = &parsed
	}

	verification := domain.VerificationPending
	now := s.clock.Now()
	record := &domain.MonetaryRecord{
		ID:           s.genID.Generate(),
		TenantID:     tenantID,
		CampaignID:   campaignID,
		Kind:         domain.KindManualEntry,
		Amount:       req.Amount,
		Currency:     currency,
		Category:     strings.TrimSpace(req.Category),
		Status:       domain.InitialStatus(domain.KindManualEntry),
		Verification: &verification,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if actor := strings.TrimSpace(req.ActorID); actor != "" {
		record.ActorID = &actor
	}

	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domain.ErrDuplicateReference
	}
	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.MonetaryRecord, error) {
	tenantID, _ := tenantctx.TenantIDFromContext(ctx)
	recordID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.FindByID(ctx, s.db, tenantID, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (s *Service) GetByExternalReference(ctx context.Context, reference string) (*domain.MonetaryRecord, error) {
	record, err := s.repo.FindByExternalReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (s *Service) ListOverdueVerification(ctx context.Context) ([]domain.MonetaryRecord, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	before := s.clock.Now().Add(-s.cfg.VerificationOverdueAfter)
	return s.repo.ListOverdueVerification(ctx, s.db, tenantID, before)
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}

func (s *Service) writeAuditLog(ctx context.Context, record *domain.MonetaryRecord, action string, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"record_id": record.ID.String(),
		"kind":      string(record.Kind),
		"status":    string(record.Status),
		"amount":    record.Amount,
		"currency":  record.Currency,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	targetID := record.ID.String()
	tenantID := record.TenantID
	if err := s.auditSvc.Log(ctx, &tenantID, record.ActorID, action, "monetary_record", &targetID, metadata); err != nil {
		s.log.Warn("failed to write transaction audit log", zap.String("action", action), zap.Error(err))
	}
}
