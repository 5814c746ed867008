package votesrvc

import (
	"time"

	back "github.com/cenkalti/backoff/v4"
)

// linearBackOff waits interval, 2*interval, ... between attempts.
type linearBackOff struct {
	interval   time.Duration
	maxRetries int
	retries    int
}

func newLinearBackOff(interval time.Duration, maxRetries int) *linearBackOff {
	return &linearBackOff{interval: interval, maxRetries: maxRetries}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	if b.retries >= b.maxRetries {
		return back.Stop
	}
	b.retries++
	return time.Duration(b.retries) * b.interval
}

func (b *linearBackOff) Reset() {
	b.retries = 0
}
