// Package ratelimit decides whether a submitter may submit another model.
// Check is a pure function of its inputs: the caller supplies the current
// time and the submitter's history.
package ratelimit

import (
	"fmt"
	"slices"
	"time"
)

type Policy struct {
	PeriodDays            int
	Quota                 int
	HigherQuotaMultiplier int
	HigherQuota           []string
	Unlimited             []string
}

type Decision struct {
	Allowed    bool
	Count      int // submissions inside the window
	Quota      int // effective quota, -1 when unlimited
	RetryAfter time.Duration
	Message    string
}

func (p Policy) period() time.Duration {
	return time.Duration(p.PeriodDays) * 24 * time.Hour
}

// EffectiveQuota returns the submitter's quota, or -1 when unlimited.
func (p Policy) EffectiveQuota(submitter string) int {
	if slices.Contains(p.Unlimited, submitter) {
		return -1
	}
	if slices.Contains(p.HigherQuota, submitter) {
		mult := p.HigherQuotaMultiplier
		if mult < 1 {
			mult = 1
		}
		return p.Quota * mult
	}
	return p.Quota
}

// Check refuses a submission when the submitter already has more than
// quota submissions strictly after now minus the period.
func Check(history []time.Time, now time.Time, submitter string, p Policy) Decision {
	quota := p.EffectiveQuota(submitter)
	if quota < 0 {
		return Decision{Allowed: true, Count: len(history), Quota: -1}
	}

	cutoff := now.Add(-p.period())
	inWindow := make([]time.Time, 0, len(history))
	for _, t := range history {
		if t.After(cutoff) {
			inWindow = append(inWindow, t)
		}
	}
	count := len(inWindow)
	if count <= quota {
		return Decision{Allowed: true, Count: count, Quota: quota}
	}

	slices.SortFunc(inWindow, func(a, b time.Time) int { return a.Compare(b) })
	// the window frees up once count-quota of the oldest entries leave it
	freedAt := inWindow[count-quota-1].Add(p.period())
	retryAfter := freedAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}

	return Decision{
		Allowed:    false,
		Count:      count,
		Quota:      quota,
		RetryAfter: retryAfter,
		Message: fmt.Sprintf(
			"%s already has %d model requests submitted in the last %d days; the limit is %d. Please wait %s before resubmitting.",
			submitter, count, p.PeriodDays, quota, humanDuration(retryAfter)),
	}
}

func humanDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
