package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Pipeline cycle metrics
	CycleRequestsTotal *prometheus.CounterVec
	CycleDuration      *prometheus.HistogramVec
	CycleErrorsTotal   *prometheus.CounterVec

	// Signal and risk metrics
	SignalActions    *prometheus.CounterVec
	SignalConfidence *prometheus.HistogramVec
	RiskScores       *prometheus.HistogramVec
	DecisionOutcomes *prometheus.CounterVec

	// Order and portfolio metrics
	OrdersTotal       *prometheus.CounterVec
	PortfolioValue    prometheus.Gauge
	ExposureRatio     prometheus.Gauge
	AutoTradingActive prometheus.Gauge

	// External API metrics
	ExternalAPIRequestsTotal *prometheus.CounterVec
	ExternalAPIErrorsTotal   *prometheus.CounterVec
	ExternalAPIDuration      *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

const namespace = "ai_trader"

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// unitBuckets cover values in [0,1] such as confidence and risk score
var unitBuckets = []float64{0, .1, .2, .3, .4, .5, .6, .7, .8, .9, 1}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		// Pipeline cycle metrics
		CycleRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "requests_total",
				Help:      "Total number of pipeline cycles started",
			},
			[]string{"run_type"},
		),
		CycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "duration_seconds",
				Help:      "Duration of pipeline cycles in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"run_type", "status"},
		),
		CycleErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "errors_total",
				Help:      "Total number of pipeline errors by stage",
			},
			[]string{"stage", "error_type"},
		),

		// Signal and risk metrics
		SignalActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "signal",
				Name:      "actions_total",
				Help:      "Total number of trading signals by action and source",
			},
			[]string{"action", "source"},
		),
		SignalConfidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "signal",
				Name:      "confidence",
				Help:      "Distribution of advisor confidence",
				Buckets:   unitBuckets,
			},
			[]string{"action"},
		),
		RiskScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "risk",
				Name:      "score",
				Help:      "Distribution of risk scores",
				Buckets:   unitBuckets,
			},
			[]string{"action"},
		),
		DecisionOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gate",
				Name:      "decisions_total",
				Help:      "Total number of gate decisions by outcome",
			},
			[]string{"outcome"},
		),

		// Order and portfolio metrics
		OrdersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "orders",
				Name:      "submitted_total",
				Help:      "Total number of submitted orders by side and status",
			},
			[]string{"side", "status"},
		),
		PortfolioValue: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "portfolio",
				Name:      "total_value",
				Help:      "Latest portfolio total value in quote currency",
			},
		),
		ExposureRatio: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "portfolio",
				Name:      "exposure_ratio",
				Help:      "Latest ratio of position notional to total value",
			},
		),
		AutoTradingActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "auto",
				Name:      "active",
				Help:      "1 while the auto-trading loop is running",
			},
		),

		// External API metrics
		ExternalAPIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "external_api",
				Name:      "requests_total",
				Help:      "Total number of external API requests",
			},
			[]string{"service", "operation"},
		),
		ExternalAPIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "external_api",
				Name:      "errors_total",
				Help:      "Total number of external API errors",
			},
			[]string{"service", "operation", "error_type"},
		),
		ExternalAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "external_api",
				Name:      "duration_seconds",
				Help:      "Duration of external API calls in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"service", "operation"},
		),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "database",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "database",
				Name:      "queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "database",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		// Circuit breaker metrics
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current state of circuit breakers (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"service"},
		),
	}

	return m
}

// InitMetrics initializes the global metrics instance
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// RecordCycleStart records the start of a pipeline cycle
func (m *Metrics) RecordCycleStart(runType string) {
	m.CycleRequestsTotal.WithLabelValues(runType).Inc()
}

// RecordCycleDuration records the duration of a pipeline cycle
func (m *Metrics) RecordCycleDuration(runType, status string, duration time.Duration) {
	m.CycleDuration.WithLabelValues(runType, status).Observe(duration.Seconds())
}

// RecordCycleError records a pipeline error at stage
func (m *Metrics) RecordCycleError(stage, errorType string) {
	m.CycleErrorsTotal.WithLabelValues(stage, errorType).Inc()
}

// RecordSignal records a generated or fallback signal
func (m *Metrics) RecordSignal(action, source string, confidence float64) {
	m.SignalActions.WithLabelValues(action, source).Inc()
	m.SignalConfidence.WithLabelValues(action).Observe(confidence)
}

// RecordRiskScore records a risk evaluation
func (m *Metrics) RecordRiskScore(action string, score float64) {
	m.RiskScores.WithLabelValues(action).Observe(score)
}

// RecordDecision records a gate outcome
func (m *Metrics) RecordDecision(outcome string) {
	m.DecisionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordOrder records an order submission result
func (m *Metrics) RecordOrder(side, status string) {
	m.OrdersTotal.WithLabelValues(side, status).Inc()
}

// SetPortfolio records the latest valuation
func (m *Metrics) SetPortfolio(totalValue, exposureRatio float64) {
	m.PortfolioValue.Set(totalValue)
	m.ExposureRatio.Set(exposureRatio)
}

// SetAutoTrading records whether the auto-trading loop is running
func (m *Metrics) SetAutoTrading(active bool) {
	if active {
		m.AutoTradingActive.Set(1)
		return
	}
	m.AutoTradingActive.Set(0)
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(service, operation string) {
	m.ExternalAPIRequestsTotal.WithLabelValues(service, operation).Inc()
}

// RecordExternalAPIError records an external API error
func (m *Metrics) RecordExternalAPIError(service, operation, errorType string) {
	m.ExternalAPIErrorsTotal.WithLabelValues(service, operation, errorType).Inc()
}

// RecordExternalAPIDuration records the duration of an external API call
func (m *Metrics) RecordExternalAPIDuration(service, operation string, duration time.Duration) {
	m.ExternalAPIDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// SetCircuitBreakerState sets the current state of a circuit breaker
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObserveCycle records the cycle duration and status
func (t *Timer) ObserveCycle(runType, status string) {
	t.metrics.RecordCycleDuration(runType, status, time.Since(t.start))
}

// ObserveExternalAPI records the external API duration
func (t *Timer) ObserveExternalAPI(service, operation string) {
	t.metrics.RecordExternalAPIDuration(service, operation, time.Since(t.start))
}

// ObserveDB records the database query duration
func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
