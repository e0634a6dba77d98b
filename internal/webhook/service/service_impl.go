package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/opencollect/donorbase/internal/audit/domain"
	campaigndomain "github.com/opencollect/donorbase/internal/campaign/domain"
	"github.com/opencollect/donorbase/internal/clock"
	"github.com/opencollect/donorbase/internal/gateway"
	gatewaydomain "github.com/opencollect/donorbase/internal/gateway/domain"
	transactiondomain "github.com/opencollect/donorbase/internal/transaction/domain"
	"github.com/opencollect/donorbase/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// gatewayActor tags audit entries that originate from a callback rather
// than an operator.
const gatewayActor = "gateway"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Verifier   *gateway.Verifier
	TxSvc      transactiondomain.Service
	Aggregator campaigndomain.Aggregator
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	verifier   *gateway.Verifier
	txSvc      transactiondomain.Service
	aggregator campaigndomain.Aggregator
	auditSvc   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("webhook.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		verifier:   p.Verifier,
		txSvc:      p.TxSvc,
		aggregator: p.Aggregator,
		auditSvc:   p.AuditSvc,
	}
}

// Process verifies the signature first, then looks up the record by its
// external reference and applies the reported outcome through the state
// machine. Redelivered callbacks that match the record's terminal state
// return a replay result without mutation; callbacks that contradict it
// return ErrReconciliationConflict with the record untouched.
func (s *Service) Process(ctx context.Context, payload []byte, signature string) (*domain.Result, error) {
	ok, err := s.verifier.Verify(payload, signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Warn("callback signature mismatch", zap.Int("payload_bytes", len(payload)))
		s.writeAuditLog(ctx, nil, "webhook.signature_mismatch", "callback", nil, map[string]any{
			"payload_bytes": len(payload),
		})
		return nil, gatewaydomain.ErrSignatureMismatch
	}

	var cb gatewaydomain.CallbackPayload
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, gatewaydomain.ErrInvalidPayload
	}
	if strings.TrimSpace(cb.TransactionReference) == "" {
		return nil, gatewaydomain.ErrInvalidPayload
	}

	status := strings.ToUpper(strings.TrimSpace(cb.TransactionStatus))
	switch status {
	case gatewaydomain.CallbackStatusSuccess, gatewaydomain.CallbackStatusFailed:
	default:
		return nil, domain.ErrUnknownStatus
	}

	now := s.clock.Now()
	trace, firstDelivery, err := s.repo.RecordDelivery(ctx, s.db, &domain.CallbackRecord{
		ID:                   s.genID.Generate(),
		PaymentReference:     cb.PaymentReference,
		TransactionReference: cb.TransactionReference,
		DedupeKey:            dedupeKey(cb),
		TransactionStatus:    status,
		PaidAmount:           cb.PaidAmount,
		PaymentMethod:        cb.PaymentMethod,
		Payload:              string(payload),
		ReceivedAt:           now,
	})
	if err != nil {
		return nil, err
	}
	if !firstDelivery {
		s.log.Info("callback redelivered",
			zap.String("transaction_reference", cb.TransactionReference),
			zap.String("status", status),
		)
	}

	// transactionReference carries the externalReference the record was
	// initialized with; paymentReference is the gateway's own id and only
	// lands in the trace row.
	record, err := s.txSvc.GetByExternalReference(ctx, cb.TransactionReference)
	if err != nil {
		return nil, err
	}

	result, outcome, err := s.apply(ctx, record, &cb, status)
	if err != nil {
		if errors.Is(err, domain.ErrReconciliationConflict) {
			s.markProcessed(ctx, trace.ID, domain.OutcomeConflict)
		}
		return nil, err
	}
	s.markProcessed(ctx, trace.ID, outcome)
	return result, nil
}

func (s *Service) apply(ctx context.Context, record *transactiondomain.MonetaryRecord, cb *gatewaydomain.CallbackPayload, status string) (*domain.Result, string, error) {
	success := status == gatewaydomain.CallbackStatusSuccess

	target := transactiondomain.StatusFailed
	if success {
		target = transactiondomain.StatusCompleted
	}

	// At-least-once delivery: a callback whose outcome the record already
	// reflects is a no-op, not an error.
	if record.Status == target {
		return &domain.Result{Record: record, Replayed: true}, domain.OutcomeReplayed, nil
	}

	switch record.Status {
	case transactiondomain.StatusPending, transactiondomain.StatusProcessing:
	default:
		s.log.Warn("callback contradicts terminal state",
			zap.String("transaction_reference", cb.TransactionReference),
			zap.String("record_status", string(record.Status)),
			zap.String("callback_status", status),
		)
		s.writeAuditLog(ctx, &record.TenantID, "webhook.reconciliation_conflict", "monetary_record", strPtr(record.ID.String()), map[string]any{
			"record_status":   string(record.Status),
			"callback_status": status,
		})
		return nil, "", domain.ErrReconciliationConflict
	}

	if success {
		return s.applySuccess(ctx, record, cb)
	}
	return s.applyFailure(ctx, record, cb)
}

func (s *Service) applySuccess(ctx context.Context, record *transactiondomain.MonetaryRecord, cb *gatewaydomain.CallbackPayload) (*domain.Result, string, error) {
	paid := cb.PaidAmount
	method := cb.PaymentMethod
	// The actor on the record stays the donor; the gateway only shows up
	// in the audit trail.
	updated, err := s.txSvc.Complete(ctx, transactiondomain.CompleteRequest{
		RecordID:      record.ID.String(),
		PaidAmount:    &paid,
		PaymentMethod: &method,
	})
	if err != nil {
		return s.classifyRace(ctx, record, transactiondomain.StatusCompleted, err)
	}

	// The aggregator claims a per-record posting row, so a crash between
	// the status write and this call can be retried safely.
	if err := s.aggregator.ApplyCompletion(ctx, updated); err != nil {
		return nil, "", err
	}
	return &domain.Result{Record: updated}, domain.OutcomeCompleted, nil
}

func (s *Service) applyFailure(ctx context.Context, record *transactiondomain.MonetaryRecord, cb *gatewaydomain.CallbackPayload) (*domain.Result, string, error) {
	updated, err := s.txSvc.Fail(ctx, record.ID.String(), "")
	if err != nil {
		return s.classifyRace(ctx, record, transactiondomain.StatusFailed, err)
	}
	return &domain.Result{Record: updated}, domain.OutcomeFailed, nil
}

// classifyRace re-reads after a lost compare-and-set. A concurrent writer
// that landed on the same target state makes this delivery a replay; any
// other state is a conflict.
func (s *Service) classifyRace(ctx context.Context, record *transactiondomain.MonetaryRecord, target transactiondomain.RecordStatus, cause error) (*domain.Result, string, error) {
	if !errors.Is(cause, transactiondomain.ErrInvalidTransition) {
		return nil, "", cause
	}
	fresh, err := s.txSvc.GetByID(ctx, record.ID.String())
	if err != nil {
		return nil, "", cause
	}
	if fresh.Status == target {
		return &domain.Result{Record: fresh, Replayed: true}, domain.OutcomeReplayed, nil
	}
	s.writeAuditLog(ctx, &record.TenantID, "webhook.reconciliation_conflict", "monetary_record", strPtr(record.ID.String()), map[string]any{
		"record_status":   string(fresh.Status),
		"callback_status": string(target),
	})
	return nil, "", domain.ErrReconciliationConflict
}

func (s *Service) markProcessed(ctx context.Context, id snowflake.ID, outcome string) {
	if err := s.repo.MarkProcessed(ctx, s.db, id, outcome, s.clock.Now()); err != nil {
		s.log.Warn("failed to mark callback processed", zap.Error(err))
	}
}

func (s *Service) writeAuditLog(ctx context.Context, tenantID *snowflake.ID, action, targetType string, targetID *string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actor := gatewayActor
	if err := s.auditSvc.Log(ctx, tenantID, &actor, action, targetType, targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.Error(err))
	}
}

// dedupeKey identifies one delivery. The gateway's transaction hash is
// stable across redeliveries of the same confirmation; older gateway
// versions omit it, so fall back to reference plus reported status.
func dedupeKey(cb gatewaydomain.CallbackPayload) string {
	if hash := strings.TrimSpace(cb.TransactionHash); hash != "" {
		return hash
	}
	return fmt.Sprintf("%s|%s", cb.TransactionReference, strings.ToUpper(strings.TrimSpace(cb.TransactionStatus)))
}

func strPtr(v string) *string {
	return &v
}
