// Package circuitbreaker circuit breaker for calls to infrastructure that may
// be down (Redis, RabbitMQ).
//
// States:
//   - CLOSED: calls pass, failures are counted
//   - OPEN: calls fail fast with ErrOpenState until Timeout elapses
//   - HALF_OPEN: up to MaxRequests probe calls; one success closes, one failure reopens
//
// The inventory ledger never puts a breaker in front of the database: a
// deduction must either reach the store or fail with the store's error.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/xiebiao/freshmart/pkg/metrics"
)

// State breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config breaker configuration
type Config struct {
	// MaxRequests probe calls allowed while HALF_OPEN
	MaxRequests uint32

	// Interval window after which CLOSED counts reset
	Interval time.Duration

	// Timeout how long the breaker stays OPEN
	Timeout time.Duration

	// ReadyToTrip decides, after a failure, whether to open
	ReadyToTrip func(counts Counts) bool
}

// DefaultConfig five consecutive failures open the breaker for 30s
func DefaultConfig() Config {
	return Config{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// Counts request statistics of the current window
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// FailureRate failures / requests
func (c *Counts) FailureRate() float64 {
	if c.Requests == 0 {
		return 0
	}
	return float64(c.TotalFailures) / float64(c.Requests)
}

// Reset clears every counter
func (c *Counts) Reset() {
	*c = Counts{}
}

// Requests is incremented in beforeRequest, not here
func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// CircuitBreaker breaker instance; safe for concurrent use
type CircuitBreaker struct {
	name          string
	maxRequests   uint32
	interval      time.Duration
	timeout       time.Duration
	readyToTrip   func(counts Counts) bool
	state         State
	generation    uint64 // bumped on every state change
	counts        Counts
	expiry        time.Time
	mu            sync.Mutex
	onStateChange func(name string, from State, to State)
}

// ErrOpenState returned without calling the protected function
var ErrOpenState = errors.New("circuit breaker is open")

// NewCircuitBreaker creates a breaker; name labels its metrics
//
//	cb := NewCircuitBreaker("redis", circuitbreaker.DefaultConfig())
func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = DefaultConfig().ReadyToTrip
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}

	cb := &CircuitBreaker{
		name:          name,
		maxRequests:   config.MaxRequests,
		interval:      config.Interval,
		timeout:       config.Timeout,
		readyToTrip:   config.ReadyToTrip,
		state:         StateClosed,
		expiry:        time.Now().Add(config.Interval),
		onStateChange: func(name string, from State, to State) {},
	}
	metrics.SetBreakerState(name, int(StateClosed))
	return cb
}

// Name breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// SetStateChangeCallback registers a callback for state changes (logging, alerts)
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(name string, from State, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs req unless the breaker is open
//
//	err := cb.Execute(func() error {
//	    return publisher.Publish(ctx, routingKey, event)
//	})
//	if errors.Is(err, circuitbreaker.ErrOpenState) { ... }
func (cb *CircuitBreaker) Execute(req func() error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		metrics.RecordBreakerRequest(cb.name, "rejected")
		return err
	}

	err = req()

	cb.afterRequest(generation, err == nil)
	if err != nil {
		metrics.RecordBreakerRequest(cb.name, "failure")
	} else {
		metrics.RecordBreakerRequest(cb.name, "success")
	}
	return err
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, generation := cb.currentState(time.Now())

	if state == StateOpen {
		return generation, ErrOpenState
	} else if state == StateHalfOpen && cb.counts.Requests >= cb.maxRequests {
		return generation, ErrOpenState
	}

	cb.counts.Requests++
	return generation, nil
}

func (cb *CircuitBreaker) afterRequest(before uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)

	// the state changed while the request ran; its result belongs to an old window
	if generation != before {
		return
	}

	if success {
		cb.onSuccess(state, now)
	} else {
		cb.onFailure(state, now)
	}
}

func (cb *CircuitBreaker) onSuccess(state State, now time.Time) {
	cb.counts.onSuccess()

	if state == StateHalfOpen {
		cb.setState(StateClosed, now)
	}
}

func (cb *CircuitBreaker) onFailure(state State, now time.Time) {
	cb.counts.onFailure()

	switch state {
	case StateClosed:
		if cb.readyToTrip(cb.counts) {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

// currentState applies time-based transitions:
// CLOSED resets its counts when the window ends, OPEN turns HALF_OPEN after Timeout.
func (cb *CircuitBreaker) currentState(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.counts.Reset()
			cb.expiry = now.Add(cb.interval)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}

	return cb.state, cb.generation
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.generation++
	cb.counts.Reset()

	switch state {
	case StateClosed:
		cb.expiry = now.Add(cb.interval)
	case StateOpen:
		cb.expiry = now.Add(cb.timeout)
	case StateHalfOpen:
		cb.expiry = time.Time{}
	}

	metrics.SetBreakerState(cb.name, int(state))
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}
}

// State current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, _ := cb.currentState(time.Now())
	return state
}

// Counts snapshot of the current window
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.counts
}
