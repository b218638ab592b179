// Package backoff computes how long to wait before the next retry attempt.
package backoff

import (
	"math"
	"time"
)

// Strategy returns the delay to apply after the given attempt. attempts
// starts at 1.
type Strategy func(attempts uint) time.Duration

// Constant waits interval after every attempt.
func Constant(interval time.Duration) Strategy {
	return func(uint) time.Duration {
		return interval
	}
}

// BinaryExponential doubles the delay after every attempt, starting at
// baseDelay: 1s, 2s, 4s, 8s, ... for a base of one second. The delay
// saturates at math.MaxInt64 rather than overflowing.
func BinaryExponential(baseDelay time.Duration) Strategy {
	return func(attempts uint) time.Duration {
		if attempts <= 1 || baseDelay <= 0 {
			return baseDelay
		}

		shift := attempts - 1
		if shift >= 63 || baseDelay > math.MaxInt64>>shift {
			return math.MaxInt64
		}
		return baseDelay << shift
	}
}
