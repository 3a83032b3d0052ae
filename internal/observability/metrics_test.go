package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDeliveryCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncDelivered("SMTP")
	metrics.IncFailed("smtp", true)
	metrics.IncFailed("smtp", false)
	metrics.IncExhausted("smtp")
	metrics.IncSkipped()
	metrics.ObserveSendDuration("smtp", 120*time.Millisecond)
	metrics.IncAttachmentFailure("NOT_FOUND")
	metrics.IncReportInjection(true)
	metrics.IncReportInjection(false)
	metrics.IncDeadLetter(true)

	if got := testutil.ToFloat64(metrics.notificationsDeliveredTotal.WithLabelValues("smtp")); got != 1 {
		t.Fatalf("notifications_delivered_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsFailedTotal.WithLabelValues("smtp", "transient")); got != 1 {
		t.Fatalf("notifications_failed_total{transient} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsFailedTotal.WithLabelValues("smtp", "permanent")); got != 1 {
		t.Fatalf("notifications_failed_total{permanent} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsExhaustedTotal.WithLabelValues("smtp")); got != 1 {
		t.Fatalf("notifications_exhausted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsSkippedTotal); got != 1 {
		t.Fatalf("notifications_skipped_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.attachmentFailuresTotal.WithLabelValues("not_found")); got != 1 {
		t.Fatalf("attachment_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.reportInjectionsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("report_injections_total{failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deadLettersTotal.WithLabelValues("published")); got != 1 {
		t.Fatalf("dead_letters_total = %v, want 1", got)
	}
}

func TestMetricsRunSummary(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	finished := time.Unix(1_760_000_000, 0)
	metrics.SetRunSummary(RunCounts{Total: 5, Succeeded: 3, Failed: 2, Exhausted: 1}, 4*time.Second, finished)

	if got := testutil.ToFloat64(metrics.lastRunItems.WithLabelValues("succeeded")); got != 3 {
		t.Fatalf("last_run_items{succeeded} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.lastRunItems.WithLabelValues("skipped")); got != 0 {
		t.Fatalf("last_run_items{skipped} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.lastRunDuration); got != 4 {
		t.Fatalf("last_run_duration_seconds = %v, want 4", got)
	}
	if got := testutil.ToFloat64(metrics.lastRunCompletedTimestamp); got != float64(finished.Unix()) {
		t.Fatalf("last_run_completed_timestamp_seconds = %v, want %d", got, finished.Unix())
	}
}

func TestMetricsPush(t *testing.T) {
	t.Parallel()

	var (
		gotMethod string
		gotPath   string
		gotBody   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	metrics := NewMetrics()
	metrics.IncDelivered("ses")

	if err := metrics.Push(context.Background(), server.URL, "dispatcher"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Fatalf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/metrics/job/dispatcher" {
		t.Fatalf("path = %q, want /metrics/job/dispatcher", gotPath)
	}
	if !strings.Contains(gotBody, "notifications_delivered_total") {
		t.Fatal("expected pushed payload to contain delivered counter")
	}
}

func TestMetricsPushRequiresURL(t *testing.T) {
	t.Parallel()

	if err := NewMetrics().Push(context.Background(), " ", "dispatcher"); err == nil {
		t.Fatal("expected error for empty pushgateway url")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncDelivered("smtp")
	metrics.IncFailed("smtp", true)
	metrics.SetRunSummary(RunCounts{}, time.Second, time.Now())
	if err := metrics.Push(context.Background(), "http://localhost:9091", "job"); err != nil {
		t.Fatalf("nil Push() error = %v", err)
	}
}
