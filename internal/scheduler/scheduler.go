// Package scheduler runs the periodic maintenance sweeps: retiring lapsed
// entitlements, flagging manual entries whose verification is overdue, and
// surfacing callback deliveries that never finished processing.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/opencollect/donorbase/internal/clock"
	appconfig "github.com/opencollect/donorbase/internal/config"
	entitlementdomain "github.com/opencollect/donorbase/internal/entitlement/domain"
	transactiondomain "github.com/opencollect/donorbase/internal/transaction/domain"
	webhookdomain "github.com/opencollect/donorbase/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler requires db, logger and clock")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	AppCfg      appconfig.Config
	WebhookRepo webhookdomain.Repository
	Config      Config `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	appCfg      appconfig.Config
	webhookRepo webhookdomain.Repository
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config
	if cfg == (Config{}) {
		cfg = Config{
			RunInterval:        p.AppCfg.SchedulerRunInterval,
			BatchSize:          p.AppCfg.SchedulerBatchSize,
			StaleCallbackAfter: p.AppCfg.SchedulerStaleCallbackAfter,
		}
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler"),
		cfg:         cfg.withDefaults(),
		clock:       p.Clock,
		appCfg:      p.AppCfg,
		webhookRepo: p.WebhookRepo,
	}, nil
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return errors.Join(
		s.RetireLapsedEntitlementsJob(ctx),
		s.FlagOverdueVerificationJob(ctx),
		s.FlagStaleCallbacksJob(ctx),
	)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RetireLapsedEntitlementsJob settles rows whose lifecycle elapsed on its
// own: requested cancellations that reached their effective date become
// cancelled, everything else past its period end becomes expired. Rows are
// kept, never deleted.
func (s *Scheduler) RetireLapsedEntitlementsJob(ctx context.Context) error {
	now := s.clock.Now()

	cancelled := s.db.WithContext(ctx).Exec(
		`UPDATE tenant_entitlements
		 SET status = ?, updated_at = ?
		 WHERE status = ?
		   AND cancellation_effective_at IS NOT NULL
		   AND cancellation_effective_at <= ?`,
		entitlementdomain.EntitlementStatusCancelled,
		now,
		entitlementdomain.EntitlementStatusActive,
		now,
	)
	if cancelled.Error != nil {
		return cancelled.Error
	}

	expired := s.db.WithContext(ctx).Exec(
		`UPDATE tenant_entitlements
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND period_end <= ?`,
		entitlementdomain.EntitlementStatusExpired,
		now,
		entitlementdomain.EntitlementStatusActive,
		now,
	)
	if expired.Error != nil {
		return expired.Error
	}

	if cancelled.RowsAffected > 0 || expired.RowsAffected > 0 {
		s.log.Info("retired lapsed entitlements",
			zap.Int64("cancelled", cancelled.RowsAffected),
			zap.Int64("expired", expired.RowsAffected),
		)
	}
	return nil
}

// FlagOverdueVerificationJob surfaces manual entries whose verification sat
// pending past the configured window. Flagging is log-only; the entries
// keep waiting for an operator.
func (s *Scheduler) FlagOverdueVerificationJob(ctx context.Context) error {
	overdueAfter := s.appCfg.VerificationOverdueAfter
	if overdueAfter <= 0 {
		return nil
	}
	before := s.clock.Now().Add(-overdueAfter)

	var count int64
	err := s.db.WithContext(ctx).Model(&transactiondomain.MonetaryRecord{}).
		Where("kind = ? AND verification = ? AND created_at <= ?",
			transactiondomain.KindManualEntry,
			transactiondomain.VerificationPending,
			before,
		).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		s.log.Warn("manual entries overdue for verification",
			zap.Int64("count", count),
			zap.Time("pending_since_before", before),
		)
	}
	return nil
}

// FlagStaleCallbacksJob surfaces callback traces that were recorded but
// never marked processed, usually a crash between the status write and the
// trace update. Reprocessing stays manual; the gateway redelivers and the
// reconciler dedupes, so flagged traces only need an operator's eyes.
func (s *Scheduler) FlagStaleCallbacksJob(ctx context.Context) error {
	if s.webhookRepo == nil {
		return nil
	}
	pending, err := s.webhookRepo.ListUnprocessed(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	cutoff := s.clock.Now().Add(-s.cfg.StaleCallbackAfter)
	for _, trace := range pending {
		if trace.ReceivedAt.After(cutoff) {
			continue
		}
		s.log.Warn("callback delivery never finished processing",
			zap.String("transaction_reference", trace.TransactionReference),
			zap.String("status", trace.TransactionStatus),
			zap.Time("received_at", trace.ReceivedAt),
		)
	}
	return nil
}
