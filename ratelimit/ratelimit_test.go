package ratelimit_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/programme-lv/evalboard/ratelimit"
	"github.com/stretchr/testify/require"
)

var policy = ratelimit.Policy{
	PeriodDays:            7,
	Quota:                 2,
	HigherQuotaMultiplier: 2,
	HigherQuota:           []string{"big-org"},
	Unlimited:             []string{"admin"},
}

func daysAgo(now time.Time, days ...float64) []time.Time {
	res := make([]time.Time, 0, len(days))
	for _, d := range days {
		res = append(res, now.Add(-time.Duration(d*24)*time.Hour))
	}
	return res
}

func TestCheckAllowsUpToQuota(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	d := ratelimit.Check(nil, now, "org", policy)
	require.True(t, d.Allowed)
	require.Equal(t, 0, d.Count)

	d = ratelimit.Check(daysAgo(now, 1, 2), now, "org", policy)
	require.True(t, d.Allowed)
	require.Equal(t, 2, d.Count)
	require.Equal(t, 2, d.Quota)
}

func TestCheckRefusesAboveQuota(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	history := daysAgo(now, 1, 3, 6)

	d := ratelimit.Check(history, now, "org", policy)
	require.False(t, d.Allowed)
	require.Equal(t, 3, d.Count)
	// the oldest entry (6 days ago) leaves the window in one day
	require.Equal(t, 24*time.Hour, d.RetryAfter)
	require.Contains(t, d.Message, "org")
	require.Contains(t, d.Message, "1d 0h")
}

func TestCheckIgnoresEntriesOutsideWindow(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	// exactly on the cutoff is outside the window
	history := daysAgo(now, 1, 7, 8, 30)

	d := ratelimit.Check(history, now, "org", policy)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Count)
}

func TestCheckHigherQuotaAndUnlimited(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	history := daysAgo(now, 1, 1, 2, 2)

	require.False(t, ratelimit.Check(history, now, "org", policy).Allowed)

	d := ratelimit.Check(history, now, "big-org", policy)
	require.True(t, d.Allowed)
	require.Equal(t, 4, d.Quota)

	d = ratelimit.Check(append(history, history...), now, "admin", policy)
	require.True(t, d.Allowed)
	require.Equal(t, -1, d.Quota)
}

func TestCheckIsPure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	now := clock.Now()
	history := daysAgo(now, 0.5, 1, 2)

	first := ratelimit.Check(history, now, "org", policy)
	clock.Advance(72 * time.Hour)
	second := ratelimit.Check(history, now, "org", policy)
	require.Equal(t, first, second)

	// history order does not matter
	reversed := []time.Time{history[2], history[1], history[0]}
	require.Equal(t, first, ratelimit.Check(reversed, now, "org", policy))

	// moving now forward frees the window
	later := ratelimit.Check(history, clock.Now().Add(5*24*time.Hour), "org", policy)
	require.True(t, later.Allowed)
}
