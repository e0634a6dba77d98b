package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencollect/donorbase/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.TenantEntitlement, error) {
	var item domain.TenantEntitlement
	err := db.WithContext(ctx).Model(&domain.TenantEntitlement{}).
		Where("tenant_id = ? AND status = ?", tenantID, domain.EntitlementStatusActive).
		Order("created_at desc").
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CancelActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenant_entitlements
		 SET status = ?, updated_at = ?
		 WHERE tenant_id = ? AND status = ?`,
		domain.EntitlementStatusCancelled,
		at,
		tenantID,
		domain.EntitlementStatusActive,
	).Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entitlement *domain.TenantEntitlement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenant_entitlements (
			id, tenant_id, plan_name, status, period_start, period_end,
			cancellation_requested_at, cancellation_effective_at, cancellation_reason,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entitlement.ID,
		entitlement.TenantID,
		entitlement.PlanName,
		entitlement.Status,
		entitlement.PeriodStart,
		entitlement.PeriodEnd,
		entitlement.CancellationRequestedAt,
		entitlement.CancellationEffectiveAt,
		entitlement.CancellationReason,
		entitlement.CreatedAt,
		entitlement.UpdatedAt,
	).Error
}

func (r *repo) ExtendPeriod(ctx context.Context, db *gorm.DB, id snowflake.ID, until, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tenant_entitlements
		 SET period_end = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND period_end < ?`,
		until,
		at,
		id,
		domain.EntitlementStatusActive,
		until,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkCancellation(ctx context.Context, db *gorm.DB, id snowflake.ID, requestedAt, effectiveAt time.Time, reason string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tenant_entitlements
		 SET cancellation_requested_at = ?, cancellation_effective_at = ?, cancellation_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND cancellation_requested_at IS NULL`,
		requestedAt,
		effectiveAt,
		reason,
		requestedAt,
		id,
		domain.EntitlementStatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListUsage(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.UsageCounter, error) {
	var items []domain.UsageCounter
	err := db.WithContext(ctx).Model(&domain.UsageCounter{}).
		Where("tenant_id = ?", tenantID).
		Order("resource asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindCounter(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, resource domain.ResourceKind) (*domain.UsageCounter, error) {
	var item domain.UsageCounter
	err := db.WithContext(ctx).Model(&domain.UsageCounter{}).
		Where("tenant_id = ? AND resource = ?", tenantID, resource).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.TenantID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpsertCounter(ctx context.Context, db *gorm.DB, counter *domain.UsageCounter) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_counters (tenant_id, resource, current_count, limit_count, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, resource) DO UPDATE
		 SET limit_count = excluded.limit_count, updated_at = excluded.updated_at`,
		counter.TenantID,
		counter.Resource,
		counter.CurrentCount,
		counter.LimitCount,
		counter.UpdatedAt,
	).Error
}

func (r *repo) TryIncrement(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, resource domain.ResourceKind, amount int64, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE usage_counters
		 SET current_count = current_count + ?, updated_at = ?
		 WHERE tenant_id = ? AND resource = ?
		   AND (limit_count = 0 OR current_count + ? <= limit_count)`,
		amount,
		at,
		tenantID,
		resource,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Decrement(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, resource domain.ResourceKind, amount int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE usage_counters
		 SET current_count = CASE WHEN current_count > ? THEN current_count - ? ELSE 0 END,
		     updated_at = ?
		 WHERE tenant_id = ? AND resource = ?`,
		amount,
		amount,
		at,
		tenantID,
		resource,
	).Error
}
