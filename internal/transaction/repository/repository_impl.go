package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencollect/donorbase/internal/transaction/domain"
	dbpkg "github.com/opencollect/donorbase/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.MonetaryRecord) (bool, error) {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO monetary_records (
			id, tenant_id, campaign_id, kind, amount, currency, category, status,
			external_reference, idempotency_token, receipt_number,
			paid_amount, payment_method, approved_amount, rejection_reason,
			verification, verified_at, verified_by, reconciled, reconciled_at,
			refund_of_id, actor_id, created_at, updated_at,
			completed_at, failed_at, cancelled_at, refunded_at,
			approved_at, rejected_at, paid_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.TenantID,
		record.CampaignID,
		record.Kind,
		record.Amount,
		record.Currency,
		record.Category,
		record.Status,
		record.ExternalReference,
		record.IdempotencyToken,
		record.ReceiptNumber,
		record.PaidAmount,
		record.PaymentMethod,
		record.ApprovedAmount,
		record.RejectionReason,
		record.Verification,
		record.VerifiedAt,
		record.VerifiedBy,
		record.Reconciled,
		record.ReconciledAt,
		record.RefundOfID,
		record.ActorID,
		record.CreatedAt,
		record.UpdatedAt,
		record.CompletedAt,
		record.FailedAt,
		record.CancelledAt,
		record.RefundedAt,
		record.ApprovedAt,
		record.RejectedAt,
		record.PaidAt,
	).Error
	if err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.MonetaryRecord, error) {
	var item domain.MonetaryRecord
	stmt := db.WithContext(ctx).Model(&domain.MonetaryRecord{}).Where("id = ?", id)
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

func (r *repo) FindByExternalReference(ctx context.Context, db *gorm.DB, reference string) (*domain.MonetaryRecord, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var item domain.MonetaryRecord
	err := db.WithContext(ctx).Model(&domain.MonetaryRecord{}).
		Where("external_reference = ?", reference).
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

func (r *repo) FindByIdempotencyToken(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, token string) (*domain.MonetaryRecord, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	var item domain.MonetaryRecord
	err := db.WithContext(ctx).Model(&domain.MonetaryRecord{}).
		Where("tenant_id = ? AND idempotency_token = ?", tenantID, token).
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

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from domain.RecordStatus, fields map[string]any) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.MonetaryRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateVerification(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.VerificationStatus, fields map[string]any) (bool, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["verification"] = to
	res := db.WithContext(ctx).Model(&domain.MonetaryRecord{}).
		Where("id = ? AND verification = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetReconciled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE monetary_records
		 SET reconciled = ?, reconciled_at = ?, updated_at = ?
		 WHERE id = ? AND verification = ? AND reconciled = ?`,
		true,
		at,
		at,
		id,
		domain.VerificationVerified,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) NextReceiptSequence(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, year int) (int64, error) {
	var counter int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO receipt_sequences (tenant_id, year, counter)
		 VALUES (?, ?, 1)
		 ON CONFLICT (tenant_id, year) DO UPDATE SET counter = receipt_sequences.counter + 1
		 RETURNING counter`,
		tenantID,
		year,
	).Scan(&counter).Error
	if err != nil {
		return 0, err
	}
	return counter, nil
}

func (r *repo) TenantName(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (string, error) {
	var name string
	err := db.WithContext(ctx).Raw(
		`SELECT name FROM tenants WHERE id = ?`,
		tenantID,
	).Scan(&name).Error
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

func (r *repo) ListOverdueVerification(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, before time.Time) ([]domain.MonetaryRecord, error) {
	var items []domain.MonetaryRecord
	err := db.WithContext(ctx).Model(&domain.MonetaryRecord{}).
		Where("tenant_id = ? AND kind = ? AND verification = ? AND created_at < ?",
			tenantID,
			domain.KindManualEntry,
			domain.VerificationPending,
			before.UTC(),
		).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
