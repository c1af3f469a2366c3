package outbox

import (
	"math"
	"time"
)

// maxBackoffShift caps the exponent so the shift itself cannot overflow.
const maxBackoffShift = 30

// BackoffDelay returns the wait after the retryCount-th failed attempt:
// base * 2^(retryCount-1), saturating at the largest Duration. A retryCount
// below 1 yields zero.
func BackoffDelay(base time.Duration, retryCount int) time.Duration {
	if retryCount < 1 || base <= 0 {
		return 0
	}
	shift := retryCount - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	if base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}
