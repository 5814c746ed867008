package conf

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/evalboard/ratelimit"
)

// Policy holds the submission limits. It is data, not code, so operators
// can change quotas and allow-lists without a release.
type Policy struct {
	RateLimitPeriodDays   int      `toml:"rate_limit_period_days"`
	RateLimitQuota        int      `toml:"rate_limit_quota"`
	HigherQuotaMultiplier int      `toml:"higher_quota_multiplier"`
	HigherQuotaSubmitters []string `toml:"higher_quota_submitters"`
	UnlimitedSubmitters   []string `toml:"unlimited_submitters"`

	ForbiddenModels []string `toml:"forbidden_models"`

	MaxParamsBillions     float64  `toml:"max_params_billions"`
	SizeLimitedPrecisions []string `toml:"size_limited_precisions"`
	MinCardLength         int      `toml:"min_card_length"`
}

func DefaultPolicy() Policy {
	return Policy{
		RateLimitPeriodDays:   7,
		RateLimitQuota:        5,
		HigherQuotaMultiplier: 2,
		MaxParamsBillions:     100,
		SizeLimitedPrecisions: []string{"float16", "bfloat16"},
		MinCardLength:         200,
	}
}

// LoadPolicy reads a TOML policy file. Keys missing from the file keep
// their defaults. An empty path yields the default policy.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(string(content))
}

func ParsePolicy(content string) (Policy, error) {
	p := DefaultPolicy()
	if err := toml.Unmarshal([]byte(content), &p); err != nil {
		return Policy{}, fmt.Errorf("failed to unmarshal policy: %w", err)
	}
	if p.RateLimitPeriodDays <= 0 {
		return Policy{}, fmt.Errorf("rate_limit_period_days must be positive")
	}
	if p.RateLimitQuota < 0 {
		return Policy{}, fmt.Errorf("rate_limit_quota must not be negative")
	}
	if p.HigherQuotaMultiplier < 1 {
		return Policy{}, fmt.Errorf("higher_quota_multiplier must be at least 1")
	}
	return p, nil
}

// IsForbidden reports whether a model id is on the forbidden list.
// Matching is case insensitive.
func (p Policy) IsForbidden(modelID string) bool {
	for _, m := range p.ForbiddenModels {
		if strings.EqualFold(m, modelID) {
			return true
		}
	}
	return false
}

func (p Policy) IsSizeLimited(precision string) bool {
	for _, prec := range p.SizeLimitedPrecisions {
		if prec == precision {
			return true
		}
	}
	return false
}

func (p Policy) RateLimit() ratelimit.Policy {
	return ratelimit.Policy{
		PeriodDays:            p.RateLimitPeriodDays,
		Quota:                 p.RateLimitQuota,
		HigherQuotaMultiplier: p.HigherQuotaMultiplier,
		HigherQuota:           p.HigherQuotaSubmitters,
		Unlimited:             p.UnlimitedSubmitters,
	}
}
