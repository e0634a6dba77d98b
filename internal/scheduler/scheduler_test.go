package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/opencollect/donorbase/internal/clock"
	appconfig "github.com/opencollect/donorbase/internal/config"
	entitlementdomain "github.com/opencollect/donorbase/internal/entitlement/domain"
	transactiondomain "github.com/opencollect/donorbase/internal/transaction/domain"
	webhookdomain "github.com/opencollect/donorbase/internal/webhook/domain"
	webhookrepository "github.com/opencollect/donorbase/internal/webhook/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupScheduler(t *testing.T, fake *clock.FakeClock) (*Scheduler, *gorm.DB, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(
		&entitlementdomain.TenantEntitlement{},
		&transactiondomain.MonetaryRecord{},
		&webhookdomain.CallbackRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sched, err := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       fake,
		AppCfg:      appconfig.Config{VerificationOverdueAfter: 7 * 24 * time.Hour},
		WebhookRepo: webhookrepository.Provide(),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched, db, node
}

func TestRetireLapsedEntitlements(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	sched, db, node := setupScheduler(t, fake)
	now := fake.Now()

	expired := &entitlementdomain.TenantEntitlement{
		ID:          node.Generate(),
		TenantID:    node.Generate(),
		PlanName:    "basic",
		Status:      entitlementdomain.EntitlementStatusActive,
		PeriodStart: now.AddDate(0, -2, 0),
		PeriodEnd:   now.AddDate(0, -1, 0),
		CreatedAt:   now.AddDate(0, -2, 0),
		UpdatedAt:   now.AddDate(0, -2, 0),
	}
	effectiveAt := now.Add(-time.Hour)
	cancelled := &entitlementdomain.TenantEntitlement{
		ID:                      node.Generate(),
		TenantID:                node.Generate(),
		PlanName:                "basic",
		Status:                  entitlementdomain.EntitlementStatusActive,
		PeriodStart:             now.AddDate(0, -1, 0),
		PeriodEnd:               now.AddDate(0, 1, 0),
		CancellationEffectiveAt: &effectiveAt,
		CreatedAt:               now.AddDate(0, -1, 0),
		UpdatedAt:               now.AddDate(0, -1, 0),
	}
	running := &entitlementdomain.TenantEntitlement{
		ID:          node.Generate(),
		TenantID:    node.Generate(),
		PlanName:    "basic",
		Status:      entitlementdomain.EntitlementStatusActive,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, row := range []*entitlementdomain.TenantEntitlement{expired, cancelled, running} {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed entitlement: %v", err)
		}
	}

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	assertStatus := func(id snowflake.ID, want entitlementdomain.EntitlementStatus) {
		t.Helper()
		var row entitlementdomain.TenantEntitlement
		if err := db.First(&row, "id = ?", id).Error; err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
		if row.Status != want {
			t.Fatalf("entitlement %s: expected %s, got %s", id, want, row.Status)
		}
	}
	assertStatus(expired.ID, entitlementdomain.EntitlementStatusExpired)
	assertStatus(cancelled.ID, entitlementdomain.EntitlementStatusCancelled)
	assertStatus(running.ID, entitlementdomain.EntitlementStatusActive)

	// Sweeps are idempotent.
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	assertStatus(cancelled.ID, entitlementdomain.EntitlementStatusCancelled)
}
