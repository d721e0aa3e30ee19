// Package metrics Prometheus metrics of the inventory ledger
//
// # Metric types in use
//
//   - Counter: only goes up (deductions, published messages, sweep runs)
//   - Gauge: goes up and down (requests in flight, breaker state)
//   - Histogram: distribution of observations (request and deduction latency)
//
// # Naming
//
//   - counters end in _total
//   - histograms end in their unit (_seconds)
//   - labels have bounded cardinality: result, status, method, route.
//     store, product and batch ids are never labels.
//
// # Usage
//
//	metrics.InitMetrics()
//	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
//	start := time.Now()
//	allocations, err := svc.Allocate(ctx, line, orderRef)
//	metrics.RecordDeduction(metrics.ResultOf(err), units, time.Since(start))
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values
const (
	ResultSuccess      = "success"
	ResultInsufficient = "insufficient"
	ResultRejected     = "rejected"
	ResultError        = "error"
	ResultHit          = "hit"
	ResultMiss         = "miss"
)

var (
	initOnce sync.Once

	// HTTP

	// HTTPRequestsTotal labels: method, path (route template), status
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsInProgress requests being served
	HTTPRequestsInProgress prometheus.Gauge

	// Inventory

	// DeductionsTotal deductForOrder calls; labels: result (success/insufficient/rejected/error)
	DeductionsTotal *prometheus.CounterVec

	// UnitsDeductedTotal smallest units deducted across all batches
	UnitsDeductedTotal prometheus.Counter

	// DeductionDuration deductForOrder latency
	DeductionDuration prometheus.Histogram

	// BatchTransitionsTotal status changes; labels: status (depleted/expired/cancelled/active)
	BatchTransitionsTotal *prometheus.CounterVec

	// SweepRunsTotal expiry sweep runs; labels: result (success/error/skipped)
	SweepRunsTotal *prometheus.CounterVec

	// AvailabilityCacheTotal availability cache lookups; labels: result (hit/miss/error)
	AvailabilityCacheTotal *prometheus.CounterVec

	// Orders

	// OrdersPlacedTotal labels: result
	OrdersPlacedTotal *prometheus.CounterVec

	// Circuit breaker

	// CircuitBreakerState 0=CLOSED, 1=OPEN, 2=HALF_OPEN; labels: name
	CircuitBreakerState *prometheus.GaugeVec

	// CircuitBreakerRequests labels: name, result (success/failure/rejected)
	CircuitBreakerRequests *prometheus.CounterVec

	// Saga

	// SagaExecutionsTotal labels: result (success/failure)
	SagaExecutionsTotal *prometheus.CounterVec

	// SagaExecutionDuration saga latency
	SagaExecutionDuration prometheus.Histogram

	// SagaCompensationsTotal compensations run
	SagaCompensationsTotal prometheus.Counter

	// Messaging

	// MessagesPublishedTotal labels: routing_key, result (success/failure)
	MessagesPublishedTotal *prometheus.CounterVec
)

// InitMetrics registers every metric with the default registry.
// Safe to call more than once; the recording helpers call it themselves.
func InitMetrics() {
	initOnce.Do(register)
}

func register() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "HTTP requests being served",
		},
	)

	DeductionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_deductions_total",
			Help: "Order deductions by result",
		},
		[]string{"result"},
	)

	UnitsDeductedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_units_deducted_total",
			Help: "Units deducted from batches",
		},
	)

	DeductionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "inventory_deduction_duration_seconds",
			Help: "Order deduction latency in seconds",
			// one transaction, a handful of conditional updates
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	BatchTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_batch_transitions_total",
			Help: "Batch status transitions by target status",
		},
		[]string{"status"},
	)

	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_sweep_runs_total",
			Help: "Expiry sweep runs by result",
		},
		[]string{"result"},
	)

	AvailabilityCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_availability_cache_total",
			Help: "Availability cache lookups by result",
		},
		[]string{"result"},
	)

	OrdersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Order placements by result",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=CLOSED, 1=OPEN, 2=HALF_OPEN)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through circuit breakers by result",
		},
		[]string{"name", "result"},
	)

	SagaExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_executions_total",
			Help: "Saga executions by result",
		},
		[]string{"result"},
	)

	SagaExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "saga_execution_duration_seconds",
			Help:    "Saga latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	SagaCompensationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_compensations_total",
			Help: "Saga compensations run",
		},
	)

	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_published_total",
			Help: "Messages published by routing key and result",
		},
		[]string{"routing_key", "result"},
	)
}

// =========================================
// Recording helpers
// =========================================

// InsufficientStock is implemented by errors that mean "not enough stock";
// keeps this package free of domain imports.
type insufficientStock interface {
	Unwrap() error
	Detail() interface{}
}

// ResultOf maps an operation error to a result label
func ResultOf(err error) string {
	if err == nil {
		return ResultSuccess
	}
	var insufficient insufficientStock
	if errors.As(err, &insufficient) {
		return ResultInsufficient
	}
	return ResultError
}

// RecordDeduction records one deductForOrder call
func RecordDeduction(result string, units int64, d time.Duration) {
	InitMetrics()
	DeductionsTotal.WithLabelValues(result).Inc()
	DeductionDuration.Observe(d.Seconds())
	if result == ResultSuccess && units > 0 {
		UnitsDeductedTotal.Add(float64(units))
	}
}

// RecordTransition records a batch status change
func RecordTransition(status string, n int) {
	InitMetrics()
	if n > 0 {
		BatchTransitionsTotal.WithLabelValues(status).Add(float64(n))
	}
}

// RecordSweep records one sweep run
func RecordSweep(result string) {
	InitMetrics()
	SweepRunsTotal.WithLabelValues(result).Inc()
}

// RecordCacheLookup records an availability cache lookup
func RecordCacheLookup(result string) {
	InitMetrics()
	AvailabilityCacheTotal.WithLabelValues(result).Inc()
}

// RecordOrder records one order placement
func RecordOrder(result string) {
	InitMetrics()
	OrdersPlacedTotal.WithLabelValues(result).Inc()
}

// RecordPublish records one message publish
func RecordPublish(routingKey string, err error) {
	InitMetrics()
	result := ResultSuccess
	if err != nil {
		result = "failure"
	}
	MessagesPublishedTotal.WithLabelValues(routingKey, result).Inc()
}

// RecordSaga records one saga execution
func RecordSaga(err error, d time.Duration, compensated bool) {
	InitMetrics()
	result := ResultSuccess
	if err != nil {
		result = "failure"
	}
	SagaExecutionsTotal.WithLabelValues(result).Inc()
	SagaExecutionDuration.Observe(d.Seconds())
	if compensated {
		SagaCompensationsTotal.Inc()
	}
}

// SetBreakerState records a circuit breaker state
func SetBreakerState(name string, state int) {
	InitMetrics()
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordBreakerRequest records one request through a circuit breaker
func RecordBreakerRequest(name, result string) {
	InitMetrics()
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// IncCounterVec increments a labelled counter
func IncCounterVec(counter *prometheus.CounterVec, labels map[string]string) {
	counter.With(labels).Inc()
}

// ObserveHistogramVec records a labelled observation
func ObserveHistogramVec(histogram *prometheus.HistogramVec, labels map[string]string, value float64) {
	histogram.With(labels).Observe(value)
}
