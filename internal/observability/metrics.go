package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsNamespace = "notification_dispatcher"

// Metrics stores the Prometheus collectors of a dispatch run. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	notificationsDeliveredTotal *prometheus.CounterVec
	notificationsFailedTotal    *prometheus.CounterVec
	notificationsExhaustedTotal *prometheus.CounterVec
	notificationsSkippedTotal   prometheus.Counter
	sendDuration                *prometheus.HistogramVec
	attachmentFailuresTotal     *prometheus.CounterVec
	reportInjectionsTotal       *prometheus.CounterVec
	deadLettersTotal            *prometheus.CounterVec
	lastRunItems                *prometheus.GaugeVec
	lastRunDuration             prometheus.Gauge
	lastRunCompletedTimestamp   prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		notificationsDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_delivered_total",
				Help:      "Notifications accepted by the mail transport.",
			},
			[]string{"transport"},
		),
		notificationsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_failed_total",
				Help:      "Failed delivery attempts by transport and failure class.",
			},
			[]string{"transport", "class"},
		),
		notificationsExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_exhausted_total",
				Help:      "Notifications that will never be retried.",
			},
			[]string{"transport"},
		),
		notificationsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_skipped_total",
				Help:      "Notifications skipped because another run held the claim.",
			},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "send_duration_seconds",
				Help:      "Mail transport send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"transport"},
		),
		attachmentFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "attachment_failures_total",
				Help:      "Attachments omitted from a message by failure kind.",
			},
			[]string{"kind"},
		),
		reportInjectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "report_injections_total",
				Help:      "Report injection calls by result.",
			},
			[]string{"result"},
		),
		deadLettersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dead_letters_total",
				Help:      "Dead-letter publications of exhausted notifications by result.",
			},
			[]string{"result"},
		),
		lastRunItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_items",
				Help:      "Item counts of the most recent run by outcome.",
			},
			[]string{"outcome"},
		),
		lastRunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_duration_seconds",
				Help:      "Wall time of the most recent run.",
			},
		),
		lastRunCompletedTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_completed_timestamp_seconds",
				Help:      "Unix time the most recent run finished.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.notificationsDeliveredTotal,
		m.notificationsFailedTotal,
		m.notificationsExhaustedTotal,
		m.notificationsSkippedTotal,
		m.sendDuration,
		m.attachmentFailuresTotal,
		m.reportInjectionsTotal,
		m.deadLettersTotal,
		m.lastRunItems,
		m.lastRunDuration,
		m.lastRunCompletedTimestamp,
	)

	return m
}

// RunCounts is the per-outcome breakdown published after a run.
type RunCounts struct {
	Total     int
	Succeeded int
	Failed    int
	Exhausted int
	Skipped   int
}

func (m *Metrics) IncDelivered(transport string) {
	if m == nil {
		return
	}
	m.notificationsDeliveredTotal.WithLabelValues(normalizeLabel(transport)).Inc()
}

func (m *Metrics) IncFailed(transport string, transient bool) {
	if m == nil {
		return
	}
	class := "permanent"
	if transient {
		class = "transient"
	}
	m.notificationsFailedTotal.WithLabelValues(normalizeLabel(transport), class).Inc()
}

func (m *Metrics) IncExhausted(transport string) {
	if m == nil {
		return
	}
	m.notificationsExhaustedTotal.WithLabelValues(normalizeLabel(transport)).Inc()
}

func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.notificationsSkippedTotal.Inc()
}

func (m *Metrics) ObserveSendDuration(transport string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.WithLabelValues(normalizeLabel(transport)).Observe(seconds)
}

func (m *Metrics) IncAttachmentFailure(kind string) {
	if m == nil {
		return
	}
	m.attachmentFailuresTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncReportInjection(injected bool) {
	if m == nil {
		return
	}
	result := "failed"
	if injected {
		result = "injected"
	}
	m.reportInjectionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncDeadLetter(published bool) {
	if m == nil {
		return
	}
	result := "failed"
	if published {
		result = "published"
	}
	m.deadLettersTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetRunSummary(counts RunCounts, duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.lastRunItems.WithLabelValues("total").Set(float64(counts.Total))
	m.lastRunItems.WithLabelValues("succeeded").Set(float64(counts.Succeeded))
	m.lastRunItems.WithLabelValues("failed").Set(float64(counts.Failed))
	m.lastRunItems.WithLabelValues("exhausted").Set(float64(counts.Exhausted))
	m.lastRunItems.WithLabelValues("skipped").Set(float64(counts.Skipped))
	m.lastRunDuration.Set(duration.Seconds())
	m.lastRunCompletedTimestamp.Set(float64(finishedAt.Unix()))
}

// Push sends every collector to a Prometheus Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, gatewayURL string, job string) error {
	if m == nil {
		return nil
	}
	gatewayURL = strings.TrimSpace(gatewayURL)
	if gatewayURL == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if strings.TrimSpace(job) == "" {
		job = serviceName
	}

	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
