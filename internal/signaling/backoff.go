package signaling

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits n × Base before the n-th retry.
type linearBackOff struct {
	Base time.Duration
	n    int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.Base
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// newReconnectBackOff returns the reconnect schedule: base, 2×base, … and
// backoff.Stop after maxAttempts retries.
func newReconnectBackOff(base time.Duration, maxAttempts int) backoff.BackOff {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return backoff.WithMaxRetries(&linearBackOff{Base: base}, uint64(maxAttempts))
}
