package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *MonetaryRecord) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*MonetaryRecord, error)
	FindByExternalReference(ctx context.Context, db *gorm.DB, reference string) (*MonetaryRecord, error)
	FindByIdempotencyToken(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, token string) (*MonetaryRecord, error)

	// UpdateStatus is the compare-and-set primitive: the write applies only
	// when the stored status still equals from. Returns false when another
	// writer got there first.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from RecordStatus, fields map[string]any) (bool, error)
	UpdateVerification(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to VerificationStatus, fields map[string]any) (bool, error)
	SetReconciled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)

	NextReceiptSequence(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, year int) (int64, error)
	TenantName(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (string, error)
	ListOverdueVerification(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, before time.Time) ([]MonetaryRecord, error)
}
