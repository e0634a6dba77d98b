package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	campaigndomain "github.com/opencollect/donorbase/internal/campaign/domain"
	campaignrepository "github.com/opencollect/donorbase/internal/campaign/repository"
	campaignservice "github.com/opencollect/donorbase/internal/campaign/service"
	"github.com/opencollect/donorbase/internal/clock"
	"github.com/opencollect/donorbase/internal/config"
	"github.com/opencollect/donorbase/internal/tenantctx"
	"github.com/opencollect/donorbase/internal/transaction/domain"
	"github.com/opencollect/donorbase/internal/transaction/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	if err := db.AutoMigrate(
		&domain.Tenant{},
		&domain.MonetaryRecord{},
		&domain.ReceiptSequence{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func setupTransactionService(t *testing.T, node *snowflake.Node, fake *clock.FakeClock, tenantID snowflake.ID) (domain.Service, *gorm.DB) {
	t.Helper()

	db := openTestDB(t)
	if err := db.Create(&domain.Tenant{ID: tenantID, Name: "Helping Hands"}).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Cfg: config.Config{
			VerificationOverdueAfter: 7 * 24 * time.Hour,
		},
		Repo: repository.Provide(),
	})
	return svc, db
}

func TestCreateContributionStartsPending(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, _ := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	record, err := svc.CreateContribution(ctx, domain.CreateContributionRequest{
		Amount:   5000,
		Currency: "usd",
		Category: "zakat",
		ActorID:  "donor-1",
	})
	if err != nil {
		t.Fatalf("create contribution: %v", err)
	}
	if record.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", record.Status)
	}
	if record.Kind != domain.KindContribution {
		t.Fatalf("expected contribution kind, got %s", record.Kind)
	}
	if record.ExternalReference == nil || *record.ExternalReference == "" {
		t.Fatal("expected generated external reference")
	}
	if record.Currency != "USD" {
		t.Fatalf("expected normalized currency, got %s", record.Currency)
	}
	if record.ReceiptNumber != nil {
		t.Fatal("receipt must not exist before completion")
	}
}

func TestCreateContributionIdempotencyToken(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, _ := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	req := domain.CreateContributionRequest{
		Amount:           2500,
		Currency:         "USD",
		ActorID:          "donor-1",
		IdempotencyToken: "init-abc",
	}
	first, err := svc.CreateContribution(ctx, req)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.CreateContribution(ctx, req)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected idempotent creation, got %s vs %s", first.ID, second.ID)
	}
}

func TestCreateContributionRejectsBadInput(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, _ := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	if _, err := svc.CreateContribution(ctx, domain.CreateContributionRequest{Amount: 0, Currency: "USD"}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.CreateContribution(ctx, domain.CreateContributionRequest{Amount: 100, Currency: " "}); !errors.Is(err, domain.ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
	if _, err := svc.CreateContribution(context.Background(), domain.CreateContributionRequest{Amount: 100, Currency: "USD"}); !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
}

func TestCompleteAssignsReceiptOnce(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, _ := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	record, err := svc.CreateContribution(ctx, domain.CreateContributionRequest{
		Amount:   5000,
		Currency: "USD",
		ActorID:  "donor-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	paid := int64(5000)
	method := "card"
	completed, err := svc.Complete(ctx, domain.CompleteRequest{
		RecordID:      record.ID.String(),
		PaidAmount:    &paid,
		PaymentMethod: &method,
		ActorID:       "gateway",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if completed.ReceiptNumber == nil {
		t.Fatal("expected receipt number")
	}
	want := regexp.MustCompile(`^HEL2026\d{4}$`)
	if !want.MatchString(*completed.ReceiptNumber) {
		t.Fatalf("unexpected receipt format %q", *completed.ReceiptNumber)
	}
	// Sequences are 1-based ordinals.
	if *completed.ReceiptNumber != "HEL20260001" {
		t.Fatalf("expected first receipt HEL20260001, got %q", *completed.ReceiptNumber)
	}
	if completed.PaidAmount == nil || *completed.PaidAmount != paid {
		t.Fatal("expected paid amount stored")
	}

	again, err := svc.Complete(ctx, domain.CompleteRequest{RecordID: record.ID.String()})
	if err != nil {
		t.Fatalf("replayed complete: %v", err)
	}
	if again.ReceiptNumber == nil || *again.ReceiptNumber != *completed.ReceiptNumber {
		t.Fatal("replayed completion must keep the original receipt")
	}
}

func TestReceiptNumbersUniqueUnderConcurrency(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, _ := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	const n = 100
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		record, err := svc.CreateContribution(ctx, domain.CreateContributionRequest{
			Amount:   int64(100 + i),
			Currency: "USD",
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, record.ID.String())
	}

	var wg sync.WaitGroup
	receipts := make([]string, n)
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			completed, err := svc.Complete(ctx, domain.CompleteRequest{RecordID: id})
			if err != nil {
				errs[i] = err
				return
			}
			if completed.ReceiptNumber != nil {
				receipts[i] = *completed.ReceiptNumber
			}
		}(i, id)
	}
	wg.Wait()

	seen := make(map[string]int)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("complete %d: %v", i, errs[i])
		}
		if receipts[i] == "" {
			t.Fatalf("complete %d: missing receipt", i)
		}
		seen[receipts[i]]++
	}
	for receipt, count := range seen {
		if count != 1 {
			t.Fatalf("receipt %s assigned %d times", receipt, count)
		}
	}
}

func TestCancelledRecordRejectsCompletion(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, _ := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	record, err := svc.CreateContribution(ctx, domain.CreateContributionRequest{Amount: 700, Currency: "USD"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Cancel(ctx, record.ID.String(), "operator"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err = svc.Complete(ctx, domain.CompleteRequest{RecordID: record.ID.String()})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, err := svc.GetByID(ctx, record.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("expected record to stay cancelled, got %s", got.Status)
	}
}

func TestSpendRequestApprovalPreservesAmount(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, _ := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	record, err := svc.CreateSpendRequest(ctx, domain.CreateSpendRequestRequest{
		Amount:   10000,
		Currency: "USD",
		Category: "supplies",
		ActorID:  "staff-1",
	})
	if err != nil {
		t.Fatalf("create spend request: %v", err)
	}

	approvedAmount := int64(8000)
	approved, err := svc.Approve(ctx, domain.ApproveRequest{
		RecordID:       record.ID.String(),
		ApprovedAmount: &approvedAmount,
		ActorID:        "treasurer",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Amount != 10000 {
		t.Fatalf("requested amount must be immutable, got %d", approved.Amount)
	}
	if approved.ApprovedAmount == nil || *approved.ApprovedAmount != approvedAmount {
		t.Fatal("expected approved amount stored separately")
	}

	paid, err := svc.MarkPaid(ctx, approved.ID.String(), "treasurer")
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.StatusPaid {
		t.Fatalf("expected paid, got %s", paid.Status)
	}

	if _, err := svc.Approve(ctx, domain.ApproveRequest{RecordID: record.ID.String()}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after paid, got %v", err)
	}
}

func TestManualEntryReconciliationRequiresVerification(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, _ := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	record, err := svc.CreateManualEntry(ctx, domain.CreateManualEntryRequest{
		Amount:   3000,
		Currency: "USD",
		ActorID:  "staff-1",
	})
	if err != nil {
		t.Fatalf("create manual entry: %v", err)
	}
	if record.Verification == nil || *record.Verification != domain.VerificationPending {
		t.Fatal("manual entry must start with pending verification")
	}

	if _, err := svc.MarkReconciled(ctx, record.ID.String(), "auditor"); !errors.Is(err, domain.ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}

	verified, err := svc.VerifyManualEntry(ctx, record.ID.String(), "auditor")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.VerifiedBy == nil || *verified.VerifiedBy != "auditor" {
		t.Fatal("expected verifier recorded")
	}

	reconciled, err := svc.MarkReconciled(ctx, record.ID.String(), "auditor")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !reconciled.Reconciled {
		t.Fatal("expected reconciled flag set")
	}

	again, err := svc.MarkReconciled(ctx, record.ID.String(), "auditor")
	if err != nil {
		t.Fatalf("replayed reconcile: %v", err)
	}
	if !again.Reconciled {
		t.Fatal("reconciliation must stay set")
	}

	if _, err := svc.RejectManualEntry(ctx, record.ID.String(), "auditor"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after verified, got %v", err)
	}
}

func TestRefundCreatesCompensatingRecord(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, db := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	record, err := svc.CreateContribution(ctx, domain.CreateContributionRequest{Amount: 4000, Currency: "USD"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Complete(ctx, domain.CompleteRequest{RecordID: record.ID.String()}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	refund, err := svc.Refund(ctx, domain.RefundRequest{RecordID: record.ID.String(), Reason: "duplicate charge", ActorID: "operator"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.Kind != domain.KindRefund {
		t.Fatalf("expected refund record, got %s", refund.Kind)
	}
	if refund.RefundOfID == nil || *refund.RefundOfID != record.ID {
		t.Fatal("expected refund linked to original")
	}
	if refund.Amount != 4000 {
		t.Fatalf("refund must mirror the original amount, got %d", refund.Amount)
	}

	original, err := svc.GetByID(ctx, record.ID.String())
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if original.Status != domain.StatusRefunded {
		t.Fatalf("expected refunded, got %s", original.Status)
	}
	if original.Amount != 4000 {
		t.Fatal("original amount must stay untouched")
	}

	if _, err := svc.Refund(ctx, domain.RefundRequest{RecordID: record.ID.String()}); !errors.Is(err, domain.ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable on second refund, got %v", err)
	}

	var count int64
	if err := db.Model(&domain.MonetaryRecord{}).Where("kind = ?", domain.KindRefund).Count(&count).Error; err != nil {
		t.Fatalf("count refunds: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one compensating record, got %d", count)
	}
}

func TestRefundReversesCampaignTotals(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	db := openTestDB(t)
	if err := db.AutoMigrate(
		&campaigndomain.Campaign{},
		&campaigndomain.CampaignMilestone{},
		&campaigndomain.CampaignPosting{},
		&campaigndomain.CampaignContributor{},
	); err != nil {
		t.Fatalf("migrate campaign tables: %v", err)
	}
	if err := db.Create(&domain.Tenant{ID: tenantID, Name: "Helping Hands"}).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	aggregator := campaignservice.NewAggregator(campaignservice.AggregatorParams{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  campaignrepository.Provide(),
	})
	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		Cfg:        config.Config{VerificationOverdueAfter: 7 * 24 * time.Hour},
		Repo:       repository.Provide(),
		Aggregator: aggregator,
	})
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	campaign := &campaigndomain.Campaign{
		ID:        node.Generate(),
		TenantID:  tenantID,
		Name:      "School Build",
		Currency:  "USD",
		Goal:      100000,
		CreatedAt: fake.Now(),
		UpdatedAt: fake.Now(),
	}
	if err := db.Create(campaign).Error; err != nil {
		t.Fatalf("seed campaign: %v", err)
	}

	record, err := svc.CreateContribution(ctx, domain.CreateContributionRequest{
		CampaignID: campaign.ID.String(),
		Amount:     4000,
		Currency:   "USD",
		ActorID:    "donor-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	completed, err := svc.Complete(ctx, domain.CompleteRequest{RecordID: record.ID.String()})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := aggregator.ApplyCompletion(ctx, completed); err != nil {
		t.Fatalf("apply completion: %v", err)
	}

	var got campaigndomain.Campaign
	if err := db.First(&got, "id = ?", campaign.ID).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if got.RaisedAmount != 4000 {
		t.Fatalf("expected raised 4000 before refund, got %d", got.RaisedAmount)
	}

	refund, err := svc.Refund(ctx, domain.RefundRequest{RecordID: record.ID.String(), Reason: "donor request", ActorID: "operator"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	if err := db.First(&got, "id = ?", campaign.ID).Error; err != nil {
		t.Fatalf("reload campaign: %v", err)
	}
	if got.RaisedAmount != 0 {
		t.Fatalf("refund must subtract from raised totals, got %d", got.RaisedAmount)
	}

	var posting campaigndomain.CampaignPosting
	if err := db.First(&posting, "record_id = ?", refund.ID).Error; err != nil {
		t.Fatalf("load refund posting: %v", err)
	}
	if posting.Direction != "debit" || posting.Amount != 4000 {
		t.Fatalf("expected debit posting of 4000, got %s %d", posting.Direction, posting.Amount)
	}
}

func TestListOverdueVerification(t *testing.T) {
	node := mustNode(t)
	tenantID := node.Generate()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc, _ := setupTransactionService(t, node, fake, tenantID)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	stale, err := svc.CreateManualEntry(ctx, domain.CreateManualEntryRequest{Amount: 100, Currency: "USD"})
	if err != nil {
		t.Fatalf("create stale: %v", err)
	}

	fake.Advance(8 * 24 * time.Hour)

	fresh, err := svc.CreateManualEntry(ctx, domain.CreateManualEntryRequest{Amount: 200, Currency: "USD"})
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	overdue, err := svc.ListOverdueVerification(ctx)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("expected one overdue entry, got %d", len(overdue))
	}
	if overdue[0].ID != stale.ID {
		t.Fatalf("expected stale entry %s, got %s", stale.ID, overdue[0].ID)
	}
	if overdue[0].ID == fresh.ID {
		t.Fatal("fresh entry must not be overdue")
	}
}
