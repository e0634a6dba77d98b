package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*TenantEntitlement, error)
	CancelActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, at time.Time) error
	Insert(ctx context.Context, db *gorm.DB, entitlement *TenantEntitlement) error
	ExtendPeriod(ctx context.Context, db *gorm.DB, id snowflake.ID, until, at time.Time) (bool, error)
	MarkCancellation(ctx context.Context, db *gorm.DB, id snowflake.ID, requestedAt, effectiveAt time.Time, reason string) (bool, error)

	ListUsage(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]UsageCounter, error)
	FindCounter(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, resource ResourceKind) (*UsageCounter, error)

	// UpsertCounter seeds the counter for a resource or rewrites its limit,
	// preserving the current count.
	UpsertCounter(ctx context.Context, db *gorm.DB, counter *UsageCounter) error

	// TryIncrement is the guarded atomic add: it applies only while the
	// resulting count stays within the limit (or the limit is unlimited).
	TryIncrement(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, resource ResourceKind, amount int64, at time.Time) (bool, error)

	// Decrement floors at zero inside the statement, never at the
	// application layer.
	Decrement(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, resource ResourceKind, amount int64, at time.Time) error
}
