// Package domain defines the reconciler contract: a verified gateway
// callback either confirms, fails, replays, or conflicts with the record
// it references.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/opencollect/donorbase/internal/transaction/domain"
	"gorm.io/gorm"
)

// Result describes what a verified callback did to its record. Replayed is
// true when the record was already in the terminal state the callback
// reports and nothing was mutated.
type Result struct {
	Record   *transactiondomain.MonetaryRecord `json:"record"`
	Replayed bool                              `json:"replayed"`
}

// Service is the single entry point for applying the gateway's asynchronous
// confirmation. Signature verification happens before any state lookup.
type Service interface {
	Process(ctx context.Context, payload []byte, signature string) (*Result, error)
}

type Repository interface {
	// RecordDelivery inserts the callback trace, or returns the existing
	// row when the same delivery was already seen. The bool is true for a
	// first-time insert.
	RecordDelivery(ctx context.Context, db *gorm.DB, record *CallbackRecord) (*CallbackRecord, bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome string, at time.Time) error
	ListUnprocessed(ctx context.Context, db *gorm.DB, limit int) ([]*CallbackRecord, error)
}

var (
	// ErrReconciliationConflict means the callback outcome contradicts the
	// record's current terminal state. Surfaced for operator review, never
	// auto-resolved.
	ErrReconciliationConflict = errors.New("reconciliation_conflict")

	ErrUnknownStatus = errors.New("unknown_callback_status")
)
