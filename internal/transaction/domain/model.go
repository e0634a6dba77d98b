// Package domain contains persistence models and the state machine for
// monetary records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RecordKind distinguishes the flavors of monetary record.
type RecordKind string

const (
	KindContribution RecordKind = "contribution"
	KindSpendRequest RecordKind = "spend_request"
	KindManualEntry  RecordKind = "manual_entry"
	KindRefund       RecordKind = "refund"
)

// RecordStatus represents lifecycle states for a monetary record.
type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusProcessing RecordStatus = "processing"
	StatusCompleted  RecordStatus = "completed"
	StatusFailed     RecordStatus = "failed"
	StatusRefunded   RecordStatus = "refunded"
	StatusCancelled  RecordStatus = "cancelled"
	StatusApproved   RecordStatus = "approved"
	StatusRejected   RecordStatus = "rejected"
	StatusPaid       RecordStatus = "paid"
)

// VerificationStatus is the orthogonal check applied to manual entries.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// MonetaryRecord is a contribution, spend request, manual ledger entry or
// compensating refund. Amounts are minor units and immutable after creation.
type MonetaryRecord struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TenantID   snowflake.ID `gorm:"column:tenant_id;not null;index;uniqueIndex:ux_monetary_records_tenant_ref,priority:1"`
	CampaignID *snowflake.ID
	Kind       RecordKind   `gorm:"type:text;not null"`
	Amount     int64        `gorm:"not null"`
	Currency   string       `gorm:"type:text;not null"`
	Category   string       `gorm:"type:text"`
	Status     RecordStatus `gorm:"type:text;not null;index"`

	// Gateway reference; unique per tenant when present.
	ExternalReference *string `gorm:"type:text;uniqueIndex:ux_monetary_records_tenant_ref,priority:2"`
	IdempotencyToken  *string `gorm:"type:text"`
	ReceiptNumber     *string `gorm:"type:text"`

	PaidAmount    *int64
	PaymentMethod *string `gorm:"type:text"`

	// Approved amount on a spend request may differ from the requested
	// amount and never overwrites it.
	ApprovedAmount  *int64
	RejectionReason *string `gorm:"type:text"`

	Verification *VerificationStatus `gorm:"type:text"`
	VerifiedAt   *time.Time
	VerifiedBy   *string `gorm:"type:text"`
	Reconciled   bool    `gorm:"not null;default:false"`
	ReconciledAt *time.Time

	RefundOfID *snowflake.ID

	ActorID     *string `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
	CompletedAt *time.Time
	FailedAt    *time.Time
	CancelledAt *time.Time
	RefundedAt  *time.Time
	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	PaidAt      *time.Time
}

func (MonetaryRecord) TableName() string { return "monetary_records" }

// ReceiptSequence tracks the per tenant, per year receipt counter.
type ReceiptSequence struct {
	TenantID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Year     int          `gorm:"primaryKey;autoIncrement:false"`
	Counter  int64        `gorm:"not null"`
}

func (ReceiptSequence) TableName() string { return "receipt_sequences" }

// Tenant is the minimal directory row the engine reads for receipt prefixes.
type Tenant struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string       `gorm:"type:text;not null"`
}

func (Tenant) TableName() string { return "tenants" }
