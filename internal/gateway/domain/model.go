// Package domain defines the payment gateway contract: the callback shape
// the collector posts back and the surface the engine calls to start a
// collection.
package domain

import (
	"context"
	"errors"
	"time"
)

// SignatureHeader carries the hex digest alongside the callback body.
const SignatureHeader = "X-Gateway-Signature"

const (
	CallbackStatusSuccess = "SUCCESS"
	CallbackStatusFailed  = "FAILED"
)

// CallbackPayload is the gateway's asynchronous confirmation body.
type CallbackPayload struct {
	PaymentReference     string    `json:"paymentReference"`
	TransactionReference string    `json:"transactionReference"`
	PaidAmount           int64     `json:"paidAmount"`
	TransactionStatus    string    `json:"transactionStatus"`
	PaymentMethod        string    `json:"paymentMethod"`
	PaidOn               time.Time `json:"paidOn"`
	TransactionHash      string    `json:"transactionHash"`
}

type InitializeRequest struct {
	TenantID         string `json:"tenant_id"`
	Reference        string `json:"reference"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	IdempotencyToken string `json:"-"`
}

type InitializeResponse struct {
	PaymentReference string `json:"paymentReference"`
	CheckoutURL      string `json:"checkoutUrl"`
}

// Initializer starts collection for a pending record. Calls are bounded by
// the configured timeout; a timeout leaves the record pending and retryable.
type Initializer interface {
	InitializeCollection(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
}

var (
	ErrMissingSignature  = errors.New("missing_signature")
	ErrSignatureMismatch = errors.New("signature_mismatch")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrGatewayTimeout    = errors.New("gateway_timeout")
	ErrGatewayRejected   = errors.New("gateway_rejected")
)
