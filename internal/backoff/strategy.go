// Package backoff provides the delay calculation strategies used by the
// retry executor.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the wait before a retry attempt.
type Strategy interface {
	// Calculate returns the backoff duration for the given attempt number
	// (0 = delay before the first retry) and parameters.
	Calculate(attempt int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration
}

// ExponentialJitterStrategy grows the delay by multiplier^attempt and adds
// uniform jitter up to jitter*delay.
type ExponentialJitterStrategy struct{}

// Calculate implements Strategy.
func (ExponentialJitterStrategy) Calculate(attempt int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30 // overflow guard
	}

	delay := time.Duration(float64(baseDelay) * pow(multiplier, attempt))
	if delay < 0 || delay > maxDelay {
		delay = maxDelay
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+extra > maxDelay {
			delay = maxDelay
		} else {
			delay += extra
		}
	}
	return delay
}

// DecorrelatedJitterStrategy implements AWS-style decorrelated jitter: a
// random delay between base and min(cap, base*3^attempt). It trades the
// tight clustering of exponential jitter for smoother tail latencies.
type DecorrelatedJitterStrategy struct{}

// Calculate implements Strategy. The multiplier and jitter parameters are
// unused; the 3x factor is part of the published formula.
func (DecorrelatedJitterStrategy) Calculate(attempt int, baseDelay, maxDelay time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return baseDelay
	}
	if attempt > 10 {
		attempt = 10 // overflow guard
	}

	base := float64(baseDelay)
	upper := base * pow(3.0, attempt)

	maxDelayFloat := float64(maxDelay)
	if upper > maxDelayFloat || upper < 0 {
		upper = maxDelayFloat
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
