package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "minisend_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	webhookRequests *prometheus.CounterVec
	webhookRejected *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec

	ordersCreated     *prometheus.CounterVec
	gateChecks        *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec

	pollAttempts  *prometheus.CounterVec
	pollCeilings  prometheus.Counter
	activePollers prometheus.Gauge

	fallbackFired prometheus.Counter

	settlementRecords *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		webhookRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "webhook_requests_total",
				Help: "Total webhook deliveries by result",
			},
			[]string{"result"},
		)
		webhookRejected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "webhook_rejected_total",
				Help: "Total rejected webhook deliveries by reason",
			},
			[]string{"reason"},
		)
		webhookLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "webhook_latency_seconds",
				Help:    "Webhook handling latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		ordersCreated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "orders_created_total",
				Help: "Total order creation attempts by result",
			},
			[]string{"result"},
		)
		gateChecks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "balance_gate_checks_total",
				Help: "Total balance gate decisions by result",
			},
			[]string{"result"},
		)
		statusTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_transitions_total",
				Help: "Accepted order status transitions by from and to state",
			},
			[]string{"from", "to"},
		)
		eventsDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_events_dropped_total",
				Help: "Status events dropped without effect by reason",
			},
			[]string{"reason"},
		)

		pollAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_attempts_total",
				Help: "Provider poll attempts by result",
			},
			[]string{"result"},
		)
		pollCeilings = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_ceilings_total",
				Help: "Polling loops stopped at the attempt ceiling",
			},
		)
		activePollers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_pollers",
				Help: "Polling loops currently running",
			},
		)

		fallbackFired = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "fallback_windows_fired_total",
				Help: "Fallback windows that elapsed without a terminal event",
			},
		)

		settlementRecords = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_records_total",
				Help: "Settlement record writes by result",
			},
			[]string{"result"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Terminal notifications by channel and result",
			},
			[]string{"channel", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Settlement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Settlement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			webhookRequests,
			webhookRejected,
			webhookLatency,
			ordersCreated,
			gateChecks,
			statusTransitions,
			eventsDropped,
			pollAttempts,
			pollCeilings,
			activePollers,
			fallbackFired,
			settlementRecords,
			notificationsTotal,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveWebhook records webhook handling duration and result.
func ObserveWebhook(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if webhookRequests != nil {
		webhookRequests.WithLabelValues(result).Inc()
	}
	if webhookLatency != nil {
		webhookLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncWebhookRejected increments rejected webhook counter.
func IncWebhookRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if webhookRejected != nil {
		webhookRejected.WithLabelValues(reason).Inc()
	}
}

// IncOrdersCreated increments order creation counter.
func IncOrdersCreated(result string) {
	if result == "" {
		result = resultSuccess
	}
	if ordersCreated != nil {
		ordersCreated.WithLabelValues(result).Inc()
	}
}

// IncGateCheck increments balance gate decision counter.
func IncGateCheck(result string) {
	if result == "" {
		result = "unknown"
	}
	if gateChecks != nil {
		gateChecks.WithLabelValues(result).Inc()
	}
}

// IncTransitions increments accepted transition counter.
func IncTransitions(from, to string) {
	if statusTransitions != nil {
		statusTransitions.WithLabelValues(from, to).Inc()
	}
}

// IncEventsDropped increments dropped status event counter.
func IncEventsDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if eventsDropped != nil {
		eventsDropped.WithLabelValues(reason).Inc()
	}
}

// IncPollAttempts increments poll attempt counter.
func IncPollAttempts(result string) {
	if result == "" {
		result = resultSuccess
	}
	if pollAttempts != nil {
		pollAttempts.WithLabelValues(result).Inc()
	}
}

// IncPollCeilings increments the ceiling stop counter.
func IncPollCeilings() {
	if pollCeilings != nil {
		pollCeilings.Inc()
	}
}

// AddActivePollers adjusts the running poller gauge.
func AddActivePollers(delta float64) {
	if activePollers != nil {
		activePollers.Add(delta)
	}
}

// IncFallbackFired increments the elapsed fallback window counter.
func IncFallbackFired() {
	if fallbackFired != nil {
		fallbackFired.Inc()
	}
}

// IncSettlementRecord increments settlement write counter.
func IncSettlementRecord(result string) {
	if result == "" {
		result = resultSuccess
	}
	if settlementRecords != nil {
		settlementRecords.WithLabelValues(result).Inc()
	}
}

// IncNotification increments the notification counter.
func IncNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(channel, result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
