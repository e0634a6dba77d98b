package service

import (
	"context"
	"strings"

	"github.com/opencollect/donorbase/internal/transaction/domain"
	"gorm.io/gorm"
)

// applyTransition is the single compare-and-set point for status writes.
// Re-invoking a transition the record already went through is a no-op that
// returns the current row; an edge the current state does not permit is
// ErrInvalidTransition. Two concurrent attempts resolve to one applied write
// and one no-op or conflict.
func (s *Service) applyTransition(ctx context.Context, db *gorm.DB, record *domain.MonetaryRecord, to domain.RecordStatus, fields map[string]any) (*domain.MonetaryRecord, bool, error) {
	if record.Status == to {
		return record, false, nil
	}
	if !domain.CanTransition(record.Kind, record.Status, to) {
		return nil, false, domain.ErrInvalidTransition
	}

	if fields == nil {
		fields = map[string]any{}
	}
	fields["status"] = to
	fields["updated_at"] = s.clock.Now()

	applied, err := s.repo.UpdateStatus(ctx, db, record.ID, record.Status, fields)
	if err != nil {
		return nil, false, err
	}
	if applied {
		fresh, err := s.repo.FindByID(ctx, db, record.TenantID, record.ID)
		if err != nil {
			return nil, false, err
		}
		if fresh == nil {
			return nil, false, domain.ErrNotFound
		}
		return fresh, true, nil
	}

	// Lost the race: re-read and classify.
	fresh, err := s.repo.FindByID(ctx, db, record.TenantID, record.ID)
	if err != nil {
		return nil, false, err
	}
	if fresh == nil {
		return nil, false, domain.ErrNotFound
	}
	if fresh.Status == to {
		return fresh, false, nil
	}
	return nil, false, domain.ErrInvalidTransition
}

func (s *Service) loadForTransition(ctx context.Context, id string) (*domain.MonetaryRecord, error) {
	recordID, err := s.parseID(id)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.FindByID(ctx, s.db, 0, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (s *Service) MarkProcessing(ctx context.Context, id string, actorID string) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, _, err := s.applyTransition(ctx, s.db, record, domain.StatusProcessing, actorFields(actorID, nil))
	return updated, err
}

// Complete moves a collection record into its terminal success state and
// assigns the receipt number exactly once, inside the same transaction as
// the status write.
func (s *Service) Complete(ctx context.Context, req domain.CompleteRequest) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if record.Status == domain.StatusCompleted {
		return record, nil
	}

	now := s.clock.Now()
	fields := map[string]any{
		"completed_at": now,
	}
	if req.PaidAmount != nil {
		fields["paid_amount"] = *req.PaidAmount
	}
	if req.PaymentMethod != nil {
		fields["payment_method"] = strings.TrimSpace(*req.PaymentMethod)
	}
	fields = actorFields(req.ActorID, fields)

	var updated *domain.MonetaryRecord
	var applied bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, applied, err = s.applyTransition(ctx, tx, record, domain.StatusCompleted, fields)
		if err != nil {
			return err
		}
		if !applied || updated.ReceiptNumber != nil {
			return nil
		}
		receipt, err := s.nextReceiptNumber(ctx, tx, updated.TenantID, now)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE monetary_records
			 SET receipt_number = ?
			 WHERE id = ? AND receipt_number IS NULL`,
			receipt,
			updated.ID,
		).Error; err != nil {
			return err
		}
		updated.ReceiptNumber = &receipt
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.writeAuditLog(ctx, updated, "transaction.completed", map[string]any{
			"receipt_number": strValue(updated.ReceiptNumber),
		})
	}
	return updated, nil
}

func (s *Service) Fail(ctx context.Context, id string, actorID string) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := actorFields(actorID, map[string]any{"failed_at": s.clock.Now()})
	updated, applied, err := s.applyTransition(ctx, s.db, record, domain.StatusFailed, fields)
	if err != nil {
		return nil, err
	}
	if applied {
		s.writeAuditLog(ctx, updated, "transaction.failed", nil)
	}
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id string, actorID string) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := actorFields(actorID, map[string]any{"cancelled_at": s.clock.Now()})
	updated, applied, err := s.applyTransition(ctx, s.db, record, domain.StatusCancelled, fields)
	if err != nil {
		return nil, err
	}
	if applied {
		s.writeAuditLog(ctx, updated, "transaction.cancelled", nil)
	}
	return updated, nil
}

// Refund compensates a completed record. The original amount is never
// mutated: a linked refund record is created and the original moves
// completed → refunded.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.StatusCompleted {
		return nil, domain.ErrNotRefundable
	}

	now := s.clock.Now()
	var compensating *domain.MonetaryRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := actorFields(req.ActorID, map[string]any{"refunded_at": now})
		_, applied, err := s.applyTransition(ctx, tx, record, domain.StatusRefunded, fields)
		if err != nil {
			return err
		}
		if !applied {
			// Another refund already went through; surface its record.
			existing, err := s.repo.FindByID(ctx, tx, record.TenantID, record.ID)
			if err != nil {
				return err
			}
			if existing == nil || existing.Status != domain.StatusRefunded {
				return domain.ErrInvalidTransition
			}
			return nil
		}

		refundID := record.ID
		compensating = &domain.MonetaryRecord{
			ID:          s.genID.Generate(),
			TenantID:    record.TenantID,
			CampaignID:  record.CampaignID,
			Kind:        domain.KindRefund,
			Amount:      record.Amount,
			Currency:    record.Currency,
			Category:    "refund",
			Status:      domain.StatusCompleted,
			RefundOfID:  &refundID,
			CreatedAt:   now,
			UpdatedAt:   now,
			CompletedAt: &now,
		}
		if actor := strings.TrimSpace(req.ActorID); actor != "" {
			compensating.ActorID = &actor
		}
		inserted, err := s.repo.Insert(ctx, tx, compensating)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrDuplicateReference
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if compensating != nil {
		// Campaign totals reverse through the same posting-claim spine as
		// completions, keyed by the compensating record's id, so a retried
		// application cannot subtract twice.
		if s.aggregator != nil {
			if err := s.aggregator.ApplyRefund(ctx, compensating); err != nil {
				return nil, err
			}
		}
		s.writeAuditLog(ctx, compensating, "transaction.refunded", map[string]any{
			"refund_of": record.ID.String(),
			"reason":    strings.TrimSpace(req.Reason),
		})
		return compensating, nil
	}
	return record, nil
}

func (s *Service) Approve(ctx context.Context, req domain.ApproveRequest) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if record.Kind != domain.KindSpendRequest && record.Kind != domain.KindManualEntry {
		return nil, domain.ErrInvalidKind
	}
	fields := actorFields(req.ActorID, map[string]any{"approved_at": s.clock.Now()})
	if req.ApprovedAmount != nil {
		if *req.ApprovedAmount <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		fields["approved_amount"] = *req.ApprovedAmount
	}
	updated, applied, err := s.applyTransition(ctx, s.db, record, domain.StatusApproved, fields)
	if err != nil {
		return nil, err
	}
	if applied {
		s.writeAuditLog(ctx, updated, "transaction.approved", nil)
	}
	return updated, nil
}

func (s *Service) Reject(ctx context.Context, req domain.RejectRequest) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if record.Kind != domain.KindSpendRequest && record.Kind != domain.KindManualEntry {
		return nil, domain.ErrInvalidKind
	}
	fields := actorFields(req.ActorID, map[string]any{"rejected_at": s.clock.Now()})
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		fields["rejection_reason"] = reason
	}
	updated, applied, err := s.applyTransition(ctx, s.db, record, domain.StatusRejected, fields)
	if err != nil {
		return nil, err
	}
	if applied {
		s.writeAuditLog(ctx, updated, "transaction.rejected", nil)
	}
	return updated, nil
}

func (s *Service) MarkPaid(ctx context.Context, id string, actorID string) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := actorFields(actorID, map[string]any{"paid_at": s.clock.Now()})
	updated, applied, err := s.applyTransition(ctx, s.db, record, domain.StatusPaid, fields)
	if err != nil {
		return nil, err
	}
	if applied {
		s.writeAuditLog(ctx, updated, "transaction.paid", nil)
	}
	return updated, nil
}

func (s *Service) VerifyManualEntry(ctx context.Context, id string, actorID string) (*domain.MonetaryRecord, error) {
	return s.setVerification(ctx, id, actorID, domain.VerificationVerified)
}

func (s *Service) RejectManualEntry(ctx context.Context, id string, actorID string) (*domain.MonetaryRecord, error) {
	return s.setVerification(ctx, id, actorID, domain.VerificationRejected)
}

func (s *Service) setVerification(ctx context.Context, id string, actorID string, to domain.VerificationStatus) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Kind != domain.KindManualEntry || record.Verification == nil {
		return nil, domain.ErrNotManualEntry
	}
	if *record.Verification == to {
		return record, nil
	}
	if !domain.CanVerifyTransition(*record.Verification, to) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	fields := map[string]any{"updated_at": now}
	if to == domain.VerificationVerified {
		fields["verified_at"] = now
		if actor := strings.TrimSpace(actorID); actor != "" {
			fields["verified_by"] = actor
		}
	}
	applied, err := s.repo.UpdateVerification(ctx, s.db, record.ID, *record.Verification, to, fields)
	if err != nil {
		return nil, err
	}
	fresh, err := s.repo.FindByID(ctx, s.db, record.TenantID, record.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, domain.ErrNotFound
	}
	if !applied && (fresh.Verification == nil || *fresh.Verification != to) {
		return nil, domain.ErrInvalidTransition
	}
	return fresh, nil
}

// MarkReconciled flips the reconciliation flag; only verified manual entries
// accept it.
func (s *Service) MarkReconciled(ctx context.Context, id string, actorID string) (*domain.MonetaryRecord, error) {
	record, err := s.loadForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Kind != domain.KindManualEntry {
		return nil, domain.ErrNotManualEntry
	}
	if record.Reconciled {
		return record, nil
	}
	if record.Verification == nil || *record.Verification != domain.VerificationVerified {
		return nil, domain.ErrNotVerified
	}

	applied, err := s.repo.SetReconciled(ctx, s.db, record.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	fresh, err := s.repo.FindByID(ctx, s.db, record.TenantID, record.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, domain.ErrNotFound
	}
	if !applied && !fresh.Reconciled {
		return nil, domain.ErrNotVerified
	}
	return fresh, nil
}

func actorFields(actorID string, fields map[string]any) map[string]any {
	if fields == nil {
		fields = map[string]any{}
	}
	if actor := strings.TrimSpace(actorID); actor != "" {
		fields["actor_id"] = actor
	}
	return fields
}

func strValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
