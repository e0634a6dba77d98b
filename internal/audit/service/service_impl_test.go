package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/opencollect/donorbase/internal/audit/domain"
	"github.com/opencollect/donorbase/internal/audit/repository"
	"github.com/opencollect/donorbase/internal/clock"
	"github.com/opencollect/donorbase/internal/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAuditService(t *testing.T, fake *clock.FakeClock) (domain.Service, *gorm.DB) {
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
	if err := db.AutoMigrate(&domain.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, db
}

func TestLogAndList(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupAuditService(t, fake)

	node, _ := snowflake.NewNode(2)
	tenantID := node.Generate()
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	actor := "operator"
	target := "rec-1"
	if err := svc.Log(ctx, nil, &actor, "transaction.completed", "monetary_record", &target, map[string]any{
		"amount": 5000,
	}); err != nil {
		t.Fatalf("log: %v", err)
	}
	fake.Advance(time.Minute)
	if err := svc.Log(ctx, nil, &actor, "transaction.refunded", "monetary_record", &target, nil); err != nil {
		t.Fatalf("log second: %v", err)
	}

	entries, err := svc.List(ctx, domain.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Action != "transaction.refunded" {
		t.Fatalf("expected newest entry first, got %s", entries[0].Action)
	}
	if entries[0].TenantID != tenantID {
		t.Fatal("expected tenant resolved from context")
	}

	filtered, err := svc.List(ctx, domain.ListFilter{Action: "transaction.completed"})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 filtered entry, got %d", len(filtered))
	}
}

func TestLogRejectsEmptyAction(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupAuditService(t, fake)

	if err := svc.Log(context.Background(), nil, nil, "  ", "x", nil, nil); !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestListRejectsInvertedRange(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupAuditService(t, fake)

	node, _ := snowflake.NewNode(3)
	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())

	start := fake.Now()
	end := start.Add(-time.Hour)
	if _, err := svc.List(ctx, domain.ListFilter{StartAt: &start, EndAt: &end}); !errors.Is(err, domain.ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
}
