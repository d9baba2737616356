package paycore

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the canonical name of the state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// FailureClassifier decides whether an error counts toward the breaker's
// failure threshold. The default counts only infrastructure failures.
type FailureClassifier func(error) bool

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
	Classifier       FailureClassifier
}

// CircuitBreaker gates outbound calls to one external payment service. It is
// safe for concurrent use. State transitions are lazy: the open→half-open
// transition happens on the next Allow check after the recovery timeout, not
// on a timer.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failures        int
	successes       int
	lastFailure     time.Time
	lastStateChange time.Time

	// cumulative counters, never reset
	totalFailures  uint64
	totalSuccesses uint64
	totalRejected  uint64
	totalTrips     uint64

	now func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	if config.Classifier == nil {
		config.Classifier = IsInfrastructureFailure
	}

	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// Allow checks whether a request may proceed. While open it rejects without
// attempting the call; once the recovery timeout has elapsed the next check
// transitions to half-open and that single request is allowed through.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.config.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			cb.lastStateChange = cb.now()
			return true
		}
		cb.totalRejected++
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordFailure records the outcome of a failed call. Errors the classifier
// rejects (client errors) leave the breaker untouched.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if !cb.config.Classifier(err) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.totalFailures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.lastStateChange = cb.now()
			cb.totalTrips++
		}
	case StateHalfOpen:
		// Any failure while probing reopens immediately.
		cb.state = StateOpen
		cb.successes = 0
		cb.lastStateChange = cb.now()
		cb.totalTrips++
	}
}

// RecordSuccess records the outcome of a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
			cb.lastStateChange = cb.now()
		}
	}
}

// State returns the current state without side effects.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RetryAfter returns how long until the breaker will next admit a probe. Zero
// when the breaker is not open.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return 0
	}
	remaining := cb.config.RecoveryTimeout - cb.now().Sub(cb.lastStateChange)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset forces the breaker back to closed. Operator action only.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.lastStateChange = cb.now()
}

// OpenError synthesizes the typed rejection returned to callers while the
// breaker is open, carrying a Retry-After hint so the caller can surface a
// uniform 503-equivalent response without attempting the call.
func (cb *CircuitBreaker) OpenError(service string) *Error {
	return &Error{
		Type:       ErrorTypeCircuitOpen,
		Message:    "circuit breaker is open",
		Service:    service,
		RetryAfter: cb.RetryAfter(),
		Timestamp:  time.Now(),
	}
}

// CircuitBreakerSnapshot is a point-in-time view of one breaker for
// dashboards and the admin endpoint.
type CircuitBreakerSnapshot struct {
	Service         string       `json:"service"`
	State           CircuitState `json:"-"`
	StateName       string       `json:"state"`
	Failures        int          `json:"failures"`
	Successes       int          `json:"successes"`
	LastFailure     time.Time    `json:"last_failure,omitempty"`
	LastStateChange time.Time    `json:"last_state_change"`
	TotalFailures   uint64       `json:"total_failures"`
	TotalSuccesses  uint64       `json:"total_successes"`
	TotalRejected   uint64       `json:"total_rejected"`
	TotalTrips      uint64       `json:"total_trips"`
}

// Snapshot captures the breaker's current counters.
func (cb *CircuitBreaker) Snapshot(service string) CircuitBreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerSnapshot{
		Service:         service,
		State:           cb.state,
		StateName:       cb.state.String(),
		Failures:        cb.failures,
		Successes:       cb.successes,
		LastFailure:     cb.lastFailure,
		LastStateChange: cb.lastStateChange,
		TotalFailures:   cb.totalFailures,
		TotalSuccesses:  cb.totalSuccesses,
		TotalRejected:   cb.totalRejected,
		TotalTrips:      cb.totalTrips,
	}
}

// BreakerRegistry tracks one breaker per named external service, created
// lazily on first use. Breaker state is per process; under horizontal
// scale-out each instance tracks its own view, which is the documented
// tradeoff for the intended single-node deployment.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
	metrics  *MetricsCollector
}

// NewBreakerRegistry creates a registry whose breakers share config.
func NewBreakerRegistry(config CircuitBreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
	}
}

// SetMetrics attaches a collector; breaker state changes are gauged per service.
func (r *BreakerRegistry) SetMetrics(mc *MetricsCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = mc
}

// Get returns the breaker for service, creating it on first use.
func (r *BreakerRegistry) Get(service string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[service]; ok {
		return cb
	}
	cb = NewCircuitBreaker(r.config)
	r.breakers[service] = cb
	return cb
}

// CanRequest reports whether a call to service would currently be admitted.
func (r *BreakerRegistry) CanRequest(service string) bool {
	allowed := r.Get(service).Allow()
	r.observe(service)
	return allowed
}

// RecordSuccess records a successful call against service's breaker.
func (r *BreakerRegistry) RecordSuccess(service string) {
	r.Get(service).RecordSuccess()
	r.observe(service)
}

// RecordFailure records a failed call against service's breaker.
func (r *BreakerRegistry) RecordFailure(service string, err error) {
	r.Get(service).RecordFailure(err)
	r.observe(service)
}

// Reset resets the breaker for service. Operator action only.
func (r *BreakerRegistry) Reset(service string) {
	r.Get(service).Reset()
	r.observe(service)
}

// Snapshots returns a point-in-time view of every tracked breaker.
func (r *BreakerRegistry) Snapshots() []CircuitBreakerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CircuitBreakerSnapshot, 0, len(r.breakers))
	for service, cb := range r.breakers {
		out = append(out, cb.Snapshot(service))
	}
	return out
}

func (r *BreakerRegistry) observe(service string) {
	r.mu.RLock()
	mc := r.metrics
	cb := r.breakers[service]
	r.mu.RUnlock()
	if mc != nil && cb != nil {
		mc.RecordCircuitBreakerState(service, cb.State())
	}
}
