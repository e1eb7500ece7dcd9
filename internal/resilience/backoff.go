package resilience

import "time"

// LinearBackoff computes reconnect delays that grow linearly with the
// attempt number and are capped: delay = min(Cap, Base*attempt).
type LinearBackoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultLinearBackoff returns the backoff used for session reconnects.
func DefaultLinearBackoff() LinearBackoff {
	return LinearBackoff{
		Base: 500 * time.Millisecond,
		Cap:  5 * time.Second,
	}
}

// Delay returns the wait before the given attempt. Attempt numbering
// starts at 1; values below 1 are treated as 1.
func (b LinearBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base * time.Duration(attempt)
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}
