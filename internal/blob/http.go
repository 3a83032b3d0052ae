package blob

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPResolver streams http and https locators.
type HTTPResolver struct {
	client *resty.Client
}

var _ Resolver = (*HTTPResolver)(nil)

func NewHTTPResolver() *HTTPResolver {
	client := resty.New()
	client.SetTimeout(defaultHTTPTimeout)

	resolver, _ := NewHTTPResolverWithClient(client)
	return resolver
}

func NewHTTPResolverWithClient(client *resty.Client) (*HTTPResolver, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	client.SetRetryCount(0)

	return &HTTPResolver{client: client}, nil
}

func (r *HTTPResolver) Fetch(ctx context.Context, locator string) (*Blob, error) {
	response, err := r.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(locator)
	if err != nil {
		if isTimeout(err) {
			return nil, timeoutError(locator, err)
		}
		return nil, &FetchError{
			Kind:      KindTransport,
			Locator:   locator,
			Message:   "request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	body := response.RawBody()
	status := response.StatusCode()

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		if body != nil {
			_ = body.Close()
		}
		if status == http.StatusNotFound || status == http.StatusGone {
			return nil, notFoundError(locator, status, nil)
		}
		return nil, &FetchError{
			Kind:       KindTransport,
			Locator:    locator,
			StatusCode: status,
			Message:    "unexpected status",
			Transient:  status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
		}
	}

	size := int64(-1)
	if raw := response.RawResponse; raw != nil {
		size = raw.ContentLength
	}

	return &Blob{
		Body:        body,
		ContentType: mediaType(response.Header().Get("Content-Type")),
		Size:        size,
	}, nil
}

// mediaType strips parameters from a Content-Type header value.
func mediaType(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return parsed
}
