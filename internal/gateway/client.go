package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/opencollect/donorbase/internal/config"
	"github.com/opencollect/donorbase/internal/gateway/domain"
	"go.uber.org/zap"
)

// Client calls the external collector to begin a collection. Every call is
// bounded by the configured timeout; on timeout the caller's record stays
// pending and the initialization may be retried with the same idempotency
// token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.GatewayBaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.GatewayTimeout},
		log:        log.Named("gateway.client"),
	}
}

func (c *Client) InitializeCollection(ctx context.Context, req domain.InitializeRequest) (*domain.InitializeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.ErrInvalidPayload
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/collections", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(req.IdempotencyToken); token != "" {
		httpReq.Header.Set("Idempotency-Key", token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			c.log.Warn("gateway initialization timed out", zap.String("reference", req.Reference))
			return nil, domain.ErrGatewayTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("gateway rejected initialization",
			zap.String("reference", req.Reference),
			zap.Int("status", resp.StatusCode),
		)
		return nil, domain.ErrGatewayRejected
	}

	var out domain.InitializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	return &out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
