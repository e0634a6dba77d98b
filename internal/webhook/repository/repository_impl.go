package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencollect/donorbase/internal/webhook/domain"
	pkgdb "github.com/opencollect/donorbase/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) RecordDelivery(ctx context.Context, db *gorm.DB, record *domain.CallbackRecord) (*domain.CallbackRecord, bool, error) {
	err := db.WithContext(ctx).Create(record).Error
	if err == nil {
		return record, true, nil
	}
	if !pkgdb.IsDuplicateKeyErr(err) {
		return nil, false, err
	}

	// Lost to an earlier delivery with the same dedupe key.
	var existing domain.CallbackRecord
	if err := db.WithContext(ctx).
		Where("dedupe_key = ?", record.DedupeKey).
		First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.CallbackRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"outcome":      outcome,
			"processed_at": at,
		}).Error
}

func (r *repo) ListUnprocessed(ctx context.Context, db *gorm.DB, limit int) ([]*domain.CallbackRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []*domain.CallbackRecord
	err := db.WithContext(ctx).Model(&domain.CallbackRecord{}).
		Where("processed_at IS NULL").
		Order("received_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
