package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type SubscribeRequest struct {
	PlanName  string     `json:"plan_name"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
	ActorID   string     `json:"actor_id"`
}

type ChangePlanRequest struct {
	PlanName string `json:"plan_name"`
	ActorID  string `json:"actor_id"`
}

type CancelRequest struct {
	Reason      string     `json:"reason"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
	ActorID     string     `json:"actor_id"`
}

type EntitlementResponse struct {
	Entitlement TenantEntitlement `json:"entitlement"`
	Usage       []UsageCounter    `json:"usage"`
}

type Service interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (*TenantEntitlement, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*TenantEntitlement, error)
	Renew(ctx context.Context, until time.Time) (*TenantEntitlement, error)
	Cancel(ctx context.Context, req CancelRequest) (*TenantEntitlement, error)
	GetActive(ctx context.Context) (*EntitlementResponse, error)

	CanPerform(ctx context.Context, resource ResourceKind) (bool, error)
	Increment(ctx context.Context, resource ResourceKind, amount int64) error
	Decrement(ctx context.Context, resource ResourceKind, amount int64) error
}

var (
	ErrInvalidTenant         = errors.New("invalid_tenant")
	ErrInvalidResource       = errors.New("invalid_resource")
	ErrPlanNotFound          = errors.New("plan_not_found")
	ErrNoActiveEntitlement   = errors.New("no_active_entitlement")
	ErrLimitExceeded         = errors.New("limit_exceeded")
	ErrDowngradeExceedsUsage = errors.New("downgrade_exceeds_usage")
	ErrInvalidPeriod         = errors.New("invalid_period")
)

// LimitError reports a refused increment together with the usage the caller
// needs for its response.
type LimitError struct {
	Resource ResourceKind
	Current  int64
	Limit    int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit_exceeded: %s %d/%d", e.Resource, e.Current, e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// DowngradeError names the resource that blocks a plan change.
type DowngradeError struct {
	Resource ResourceKind
	Current  int64
	NewLimit int64
}

func (e *DowngradeError) Error() string {
	return fmt.Sprintf("downgrade_exceeds_usage: %s usage %d exceeds new limit %d", e.Resource, e.Current, e.NewLimit)
}

func (e *DowngradeError) Unwrap() error { return ErrDowngradeExceedsUsage }
