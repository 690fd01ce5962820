package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fleet_"

	// ResultSuccess labels a successful operation.
	ResultSuccess = "success"
	// ResultError labels a failed operation.
	ResultError = "error"
)

var (
	registerOnce sync.Once

	intakeRequests *prometheus.CounterVec
	intakeErrors   *prometheus.CounterVec
	intakeLatency  *prometheus.HistogramVec

	ingestMessages *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	recordsStored      prometheus.Counter
	recordsDeadLetter  prometheus.Counter
	messageRedelivered prometheus.Counter

	summaryTotal   *prometheus.CounterVec
	summaryLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		intakeRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "intake_requests_total",
				Help: "Total intake requests by result",
			},
			[]string{"result"},
		)
		intakeErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "intake_errors_total",
				Help: "Total intake errors by reason",
			},
			[]string{"reason"},
		)
		intakeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "intake_latency_seconds",
				Help:    "Intake latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		ingestMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_messages_total",
				Help: "Total queue messages processed by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_message_latency_seconds",
				Help:    "Per-message ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		recordsStored = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_stored_total",
				Help: "Total telemetry records written to the store",
			},
		)
		recordsDeadLetter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_dead_lettered_total",
				Help: "Total telemetry records rejected to the dead letter table",
			},
		)
		messageRedelivered = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "messages_redelivered_total",
				Help: "Total queue messages seen more than once",
			},
		)

		summaryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "summary_total",
				Help: "Total fleet summary computations by result",
			},
			[]string{"result"},
		)
		summaryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "summary_latency_seconds",
				Help:    "Fleet summary latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			intakeRequests,
			intakeErrors,
			intakeLatency,
			ingestMessages,
			ingestLatency,
			recordsStored,
			recordsDeadLetter,
			messageRedelivered,
			summaryTotal,
			summaryLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIntake records intake request duration and result.
func ObserveIntake(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if intakeRequests != nil {
		intakeRequests.WithLabelValues(result).Inc()
	}
	if intakeLatency != nil {
		intakeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIntakeError increments intake error counter.
func IncIntakeError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if intakeErrors != nil {
		intakeErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveMessage records per-message ingest duration and result.
func ObserveMessage(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if ingestMessages != nil {
		ingestMessages.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddRecordsStored adds to the stored-records counter.
func AddRecordsStored(n int) {
	if n > 0 && recordsStored != nil {
		recordsStored.Add(float64(n))
	}
}

// AddRecordsDeadLettered adds to the dead-lettered counter.
func AddRecordsDeadLettered(n int) {
	if n > 0 && recordsDeadLetter != nil {
		recordsDeadLetter.Add(float64(n))
	}
}

// IncRedelivered counts a message delivered more than once.
func IncRedelivered() {
	if messageRedelivered != nil {
		messageRedelivered.Inc()
	}
}

// ObserveSummary records summary computation duration and result.
func ObserveSummary(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if summaryTotal != nil {
		summaryTotal.WithLabelValues(result).Inc()
	}
	if summaryLatency != nil {
		summaryLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "telemetry_records",
			Help: "Stored telemetry records",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM telemetry_records")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "telemetry_dead_letters",
			Help: "Dead lettered telemetry records",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM telemetry_dead_letters")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
