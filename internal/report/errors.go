package report

import (
	"fmt"
	"strings"
)

// InjectionError means no report content could be obtained. The caller keeps the original body.
type InjectionError struct {
	ReportType string
	StatusCode int
	Message    string
	Cause      error
}

func (e *InjectionError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("report injection %q failed", e.ReportType))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *InjectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
