package backoff

import "time"

// Calculator binds a Strategy so callers hold one value instead of threading
// the strategy through every call site.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a calculator with the given strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{strategy: strategy}
}

// Calculate computes the backoff duration for the given attempt.
func (c *Calculator) Calculate(attempt int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, baseDelay, maxDelay, multiplier, jitter)
}
