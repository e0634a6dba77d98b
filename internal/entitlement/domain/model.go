// Package domain contains subscription tiers, tenant entitlements and usage
// counters.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ResourceKind names a metered resource. A plan limit of zero means
// unlimited, distinct from zero allowed.
type ResourceKind string

const (
	ResourceBranches   ResourceKind = "branches"
	ResourceCampaigns  ResourceKind = "campaigns"
	ResourceStaff      ResourceKind = "staff"
	ResourceVolunteers ResourceKind = "volunteers"
	ResourceTeams      ResourceKind = "teams"
)

// ResourceKinds returns the closed set of metered resources.
func ResourceKinds() []ResourceKind {
	return []ResourceKind{
		ResourceBranches,
		ResourceCampaigns,
		ResourceStaff,
		ResourceVolunteers,
		ResourceTeams,
	}
}

func ParseResourceKind(value string) (ResourceKind, bool) {
	normalized := ResourceKind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range ResourceKinds() {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// Plan is an immutable tier snapshot from the catalog.
type Plan struct {
	Name   string
	Price  int64
	Limits map[ResourceKind]int64
}

// EntitlementStatus represents lifecycle states for a tenant entitlement.
type EntitlementStatus string

const (
	EntitlementStatusActive    EntitlementStatus = "active"
	EntitlementStatusExpired   EntitlementStatus = "expired"
	EntitlementStatusCancelled EntitlementStatus = "cancelled"
	EntitlementStatusSuspended EntitlementStatus = "suspended"
)

// TenantEntitlement is a tenant's subscription instance. Rows are never
// deleted; retirement marks them terminal to preserve billing history.
type TenantEntitlement struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	TenantID    snowflake.ID      `gorm:"column:tenant_id;not null;index"`
	PlanName    string            `gorm:"type:text;not null"`
	Status      EntitlementStatus `gorm:"type:text;not null;index"`
	PeriodStart time.Time         `gorm:"not null"`
	PeriodEnd   time.Time         `gorm:"not null"`

	CancellationRequestedAt *time.Time
	CancellationEffectiveAt *time.Time
	CancellationReason      *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (TenantEntitlement) TableName() string { return "tenant_entitlements" }

// UsageCounter meters one resource kind for a tenant. CurrentCount is only
// mutated by atomic adds; the guarded increment is the admission check.
type UsageCounter struct {
	TenantID     snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Resource     ResourceKind `gorm:"primaryKey;type:text"`
	CurrentCount int64        `gorm:"not null"`
	LimitCount   int64        `gorm:"not null"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

func (UsageCounter) TableName() string { return "usage_counters" }

// Unlimited reports whether the counter has no ceiling.
func (c UsageCounter) Unlimited() bool { return c.LimitCount == 0 }
