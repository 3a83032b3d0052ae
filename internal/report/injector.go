package report

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultReportTimeout = 60 * time.Second

	// Separator is placed between the notification body and injected report HTML.
	Separator = `<hr style="margin:24px 0;border:none;border-top:1px solid #ccc"/>`
)

// Request identifies the report to generate.
type Request struct {
	ReportType   string
	LookbackDays int
	ScopeID      *string
}

// Injector produces report HTML for a notification body.
type Injector interface {
	Inject(ctx context.Context, req Request) (string, error)
}

type generateRequest struct {
	LookbackDays int     `json:"lookbackDays"`
	ScopeID      *string `json:"scopeId,omitempty"`
	AsOf         string  `json:"asOf"`
}

type generateResponse struct {
	Success bool   `json:"success"`
	HTML    string `json:"html"`
	Error   string `json:"error"`
}

// HTTPInjector calls the report generation service. It never retries.
type HTTPInjector struct {
	client  *resty.Client
	baseURL string
	timeout time.Duration
	now     func() time.Time
}

var _ Injector = (*HTTPInjector)(nil)

func NewHTTPInjector(baseURL string, timeout time.Duration) (*HTTPInjector, error) {
	return NewHTTPInjectorWithClient(baseURL, timeout, resty.New())
}

func NewHTTPInjectorWithClient(baseURL string, timeout time.Duration, client *resty.Client) (*HTTPInjector, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("report service url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid report service url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if timeout <= 0 {
		timeout = defaultReportTimeout
	}

	client.SetRetryCount(0)

	return &HTTPInjector{
		client:  client,
		baseURL: trimmed,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// Inject returns the generated HTML. success=false, a non-2xx reply, a failed call and an empty
// document all yield *InjectionError.
func (i *HTTPInjector) Inject(ctx context.Context, req Request) (string, error) {
	reportType := strings.TrimSpace(req.ReportType)
	if reportType == "" {
		return "", &InjectionError{Message: "report type is required"}
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	var result generateResponse
	response, err := i.client.R().
		SetContext(callCtx).
		SetHeader("Content-Type", "application/json").
		SetBody(generateRequest{
			LookbackDays: req.LookbackDays,
			ScopeID:      req.ScopeID,
			AsOf:         i.now().UTC().Format(time.RFC3339),
		}).
		SetResult(&result).
		Post(i.baseURL + "/reports/" + url.PathEscape(reportType))
	if err != nil {
		return "", &InjectionError{ReportType: reportType, Message: "report service call failed", Cause: err}
	}

	status := response.StatusCode()
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", &InjectionError{
			ReportType: reportType,
			StatusCode: status,
			Message:    strings.TrimSpace(response.String()),
		}
	}

	if !result.Success {
		message := strings.TrimSpace(result.Error)
		if message == "" {
			message = "report service reported failure"
		}
		return "", &InjectionError{ReportType: reportType, StatusCode: status, Message: message}
	}
	if strings.TrimSpace(result.HTML) == "" {
		return "", &InjectionError{ReportType: reportType, StatusCode: status, Message: "empty report document"}
	}

	return result.HTML, nil
}

// Append places report HTML beneath the original body.
func Append(body, reportHTML string) string {
	return body + "\n" + Separator + "\n" + reportHTML
}
