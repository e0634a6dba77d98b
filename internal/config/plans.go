package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanLimits maps a resource kind to its ceiling. Zero means unlimited.
type PlanLimits map[string]int64

// PlanConfig describes a single subscription tier.
type PlanConfig struct {
	Name   string     `mapstructure:"name"`
	Price  int64      `mapstructure:"price"`
	Limits PlanLimits `mapstructure:"limits"`
}

// PlanCatalog is the closed set of tiers a tenant may subscribe to.
type PlanCatalog struct {
	Plans []PlanConfig `mapstructure:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []PlanConfig{
			{Name: "free", Price: 0, Limits: PlanLimits{
				"branches": 1, "campaigns": 2, "staff": 3, "volunteers": 10, "teams": 2,
			}},
			{Name: "basic", Price: 290_00, Limits: PlanLimits{
				"branches": 3, "campaigns": 10, "staff": 15, "volunteers": 100, "teams": 10,
			}},
			{Name: "standard", Price: 790_00, Limits: PlanLimits{
				"branches": 10, "campaigns": 50, "staff": 50, "volunteers": 500, "teams": 50,
			}},
			{Name: "premium", Price: 1990_00, Limits: PlanLimits{
				"branches": 0, "campaigns": 0, "staff": 0, "volunteers": 0, "teams": 0,
			}},
		},
	}
}

// PlanCatalogHolder keeps an immutable catalog snapshot that services read;
// reloads swap the snapshot atomically.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

func NewPlanCatalogHolder() (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/donorbase/config")
	v.AddConfigPath("/etc/donorbase")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DONORBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder := &PlanCatalogHolder{}
		holder.current.Store(DefaultPlanCatalog())
		return holder, nil
	}

	var catalog PlanCatalog
	if err := v.UnmarshalKey("billing", &catalog); err != nil {
		return nil, err
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[plan-catalog] reload failed: %v", err)
			return
		}
		if err := validatePlanCatalog(updated); err != nil {
			log.Printf("[plan-catalog] invalid catalog ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-catalog] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlanCatalogHolder wraps a fixed catalog, used by tests to
// substitute fixtures.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

// Find returns the named plan, or false when the catalog does not carry it.
func (c PlanCatalog) Find(name string) (PlanConfig, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, plan := range c.Plans {
		if strings.ToLower(plan.Name) == name {
			return plan, true
		}
	}
	return PlanConfig{}, false
}

func validatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("billing.plans cannot be empty")
	}
	seen := map[string]bool{}
	for _, plan := range catalog.Plans {
		name := strings.ToLower(strings.TrimSpace(plan.Name))
		if name == "" {
			return errors.New("billing.plans entry missing name")
		}
		if seen[name] {
			return errors.New("billing.plans contains duplicate name " + name)
		}
		seen[name] = true
		for kind, limit := range plan.Limits {
			if limit < 0 {
				return errors.New("billing.plans limit for " + kind + " cannot be negative")
			}
		}
	}
	return nil
}
