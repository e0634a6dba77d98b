package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Delivery outcomes recorded on the callback row once processing finishes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeReplayed  = "replayed"
	OutcomeConflict  = "conflict"
)

// CallbackRecord is the durable trace of one gateway delivery. The dedupe
// key is unique per delivery, so a redelivered callback lands on the same
// row instead of creating a second one.
type CallbackRecord struct {
	ID                   snowflake.ID `gorm:"primaryKey"`
	PaymentReference     string       `gorm:"type:text;not null;index"`
	TransactionReference string       `gorm:"type:text;not null"`
	DedupeKey            string       `gorm:"type:text;not null;uniqueIndex:ux_callback_records_dedupe"`
	TransactionStatus    string       `gorm:"type:text;not null"`
	PaidAmount           int64        `gorm:"not null"`
	PaymentMethod        string       `gorm:"type:text"`
	Payload              string       `gorm:"type:text"`
	Outcome              *string      `gorm:"type:text"`
	ReceivedAt           time.Time    `gorm:"not null"`
	ProcessedAt          *time.Time
}

func (CallbackRecord) TableName() string {
	return "callback_records"
}
