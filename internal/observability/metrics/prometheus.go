// Package metrics provides Prometheus metrics for the SIG calculation
// service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	CalculationsTotal     prometheus.Counter
	CalculationsFailed    prometheus.Counter
	CalculationDuration   prometheus.Histogram
	SIGsParsed            *prometheus.CounterVec
	PlansEmpty            prometheus.Counter
	WarningsEmitted       *prometheus.CounterVec
	DirectoryLookups      prometheus.Counter
	DirectoryLookupErrors prometheus.Counter
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		CalculationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sig_calculations_total",
			Help: "Total dosing calculations performed",
		}),
		CalculationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sig_calculations_failed_total",
			Help: "Total calculations rejected for out-of-contract input",
		}),
		CalculationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sig_calculation_duration_seconds",
			Help:    "End-to-end calculation duration",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		}),
		SIGsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sig_parsed_total",
			Help: "SIGs parsed, labeled by resulting dosing shape",
		}, []string{"shape"}),
		PlansEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispense_plans_empty_total",
			Help: "Calculations where no fulfillable package was found",
		}),
		WarningsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispense_warnings_total",
			Help: "Fulfillment warnings emitted, labeled by type",
		}, []string{"type"}),
		DirectoryLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ndc_directory_lookups_total",
			Help: "Package lookups against the NDC directory",
		}),
		DirectoryLookupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ndc_directory_lookup_errors_total",
			Help: "Failed NDC directory lookups",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.CalculationsTotal,
		m.CalculationsFailed,
		m.CalculationDuration,
		m.SIGsParsed,
		m.PlansEmpty,
		m.WarningsEmitted,
		m.DirectoryLookups,
		m.DirectoryLookupErrors,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
