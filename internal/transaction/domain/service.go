package domain

import (
	"context"
	"errors"
)

type CreateContributionRequest struct {
	CampaignID       string `json:"campaign_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Category         string `json:"category"`
	ActorID          string `json:"actor_id"`
	IdempotencyToken string `json:"idempotency_token"`
}

type CreateSpendRequestRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Category string `json:"category"`
	ActorID  string `json:"actor_id"`
}

type CreateManualEntryRequest struct {
	CampaignID string `json:"campaign_id,omitempty"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Category   string `json:"category"`
	ActorID    string `json:"actor_id"`
}

type CompleteRequest struct {
	RecordID      string
	PaidAmount    *int64
	PaymentMethod *string
	ActorID       string
}

type ApproveRequest struct {
	RecordID       string
	ApprovedAmount *int64
	ActorID        string
}

type RejectRequest struct {
	RecordID string
	Reason   string
	ActorID  string
}

type RefundRequest struct {
	RecordID string
	Reason   string
	ActorID  string
}

type Service interface {
	CreateContribution(ctx context.Context, req CreateContributionRequest) (*MonetaryRecord, error)
	CreateSpendRequest(ctx context.Context, req CreateSpendRequestRequest) (*MonetaryRecord, error)
	CreateManualEntry(ctx context.Context, req CreateManualEntryRequest) (*MonetaryRecord, error)

	GetByID(ctx context.Context, id string) (*MonetaryRecord, error)
	GetByExternalReference(ctx context.Context, reference string) (*MonetaryRecord, error)

	MarkProcessing(ctx context.Context, id string, actorID string) (*MonetaryRecord, error)
	Complete(ctx context.Context, req CompleteRequest) (*MonetaryRecord, error)
	Fail(ctx context.Context, id string, actorID string) (*MonetaryRecord, error)
	Cancel(ctx context.Context, id string, actorID string) (*MonetaryRecord, error)
	Refund(ctx context.Context, req RefundRequest) (*MonetaryRecord, error)

	Approve(ctx context.Context, req ApproveRequest) (*MonetaryRecord, error)
	Reject(ctx context.Context, req RejectRequest) (*MonetaryRecord, error)
	MarkPaid(ctx context.Context, id string, actorID string) (*MonetaryRecord, error)

	VerifyManualEntry(ctx context.Context, id string, actorID string) (*MonetaryRecord, error)
	RejectManualEntry(ctx context.Context, id string, actorID string) (*MonetaryRecord, error)
	MarkReconciled(ctx context.Context, id string, actorID string) (*MonetaryRecord, error)
	ListOverdueVerification(ctx context.Context) ([]MonetaryRecord, error)
}

var (
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("record_not_found")
	ErrInvalidTransition   = errors.New("invalid_state_transition")
	ErrDuplicateReference  = errors.New("duplicate_external_reference")
	ErrNotRefundable       = errors.New("record_not_refundable")
	ErrNotVerified         = errors.New("record_not_verified")
	ErrNotManualEntry      = errors.New("record_not_manual_entry")
	ErrInvalidKind         = errors.New("invalid_record_kind")
	ErrTenantNotFound      = errors.New("tenant_not_found")
)
