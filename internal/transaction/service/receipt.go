package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/opencollect/donorbase/internal/transaction/domain"
	"gorm.io/gorm"
)

// nextReceiptNumber claims the per tenant, per year sequence and formats
// {tenantPrefix}{year}{sequence:04d}. The sequence row is upserted
// atomically, so a replayed completion never re-generates a number.
func (s *Service) nextReceiptNumber(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, at time.Time) (string, error) {
	name, err := s.repo.TenantName(ctx, tx, tenantID)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", domain.ErrTenantNotFound
	}

	year := at.UTC().Year()
	sequence, err := s.repo.NextReceiptSequence(ctx, tx, tenantID, year)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%d%04d", tenantPrefix(name), year, sequence), nil
}

// tenantPrefix derives a short deterministic code from the tenant name.
func tenantPrefix(name string) string {
	letters := strings.ReplaceAll(slug.Make(name), "-", "")
	if len(letters) >= 3 {
		letters = letters[:3]
	}
	if letters == "" {
		letters = "org"
	}
	return strings.ToUpper(letters)
}
