package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_LevelMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true},
		{name: "info level", level: "info", debugEnabled: false},
		{name: "upper case warn", level: " WARN ", debugEnabled: false},
		{name: "empty level defaults to info", level: "", debugEnabled: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("logger should not be nil")
			}

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled=%v, want=%v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("not-a-level")
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if logger != nil {
		t.Fatal("expected nil logger for invalid level")
	}
}

func TestRunID_ContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := WithRunID(context.Background(), "run-123")
	runID, ok := RunIDFromContext(ctx)
	if !ok {
		t.Fatal("expected run id to exist")
	}
	if runID != "run-123" {
		t.Fatalf("run id=%q, want=%q", runID, "run-123")
	}

	if _, ok := NotificationIDFromContext(ctx); ok {
		t.Fatal("expected notification id to be missing")
	}
}

func TestRunID_MissingValue(t *testing.T) {
	t.Parallel()

	if _, ok := RunIDFromContext(context.Background()); ok {
		t.Fatal("expected run id to be missing")
	}
	if _, ok := RunIDFromContext(WithRunID(context.Background(), "")); ok {
		t.Fatal("expected empty run id to be treated as missing")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	ctx := WithRunID(context.Background(), "run-789")
	ctx = WithNotificationID(ctx, "n-1")
	WithContextLogger(baseLogger, ctx).Info("processing")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}

	fields := entries[0].ContextMap()
	if got := fields["runId"]; got != "run-789" {
		t.Fatalf("runId=%v, want=%q", got, "run-789")
	}
	if got := fields["notificationId"]; got != "n-1" {
		t.Fatalf("notificationId=%v, want=%q", got, "n-1")
	}
}

func TestWithContextLogger_NoIDs(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	WithContextLogger(baseLogger, context.Background()).Info("plain")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}
	if len(entries[0].ContextMap()) != 0 {
		t.Fatalf("expected no context fields, got %v", entries[0].ContextMap())
	}
}

func TestWithContextLogger_NilLogger(t *testing.T) {
	t.Parallel()

	if got := WithContextLogger(nil, context.Background()); got != nil {
		t.Fatal("expected nil logger")
	}
}
