package watch

import "time"

// maxBackoff caps the delay between reconnection attempts.
const maxBackoff = 120 * time.Second

// Backoff tracks the delay before the next connection attempt. The zero
// value means connect immediately; each failure doubles the delay with a
// floor of one second before doubling and a ceiling of two minutes, and
// any success resets it. Starting from zero the delays go
// 0, 2, 4, 8, 16, 32, 64, 120, 120, ...
type Backoff struct {
	cur time.Duration
}

// Delay returns the current delay without changing it.
func (b *Backoff) Delay() time.Duration {
	return b.cur
}

// Next advances the backoff after a failure and returns the new delay.
func (b *Backoff) Next() time.Duration {
	base := b.cur
	if base < time.Second {
		base = time.Second
	}
	next := 2 * base
	if next > maxBackoff {
		next = maxBackoff
	}
	b.cur = next
	return next
}

// Reset drops the delay back to zero after a success.
func (b *Backoff) Reset() {
	b.cur = 0
}
