package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPResolverFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/report.pdf":
			w.Header().Set("Content-Type", "application/pdf; qs=0.9")
			_, _ = w.Write([]byte("%PDF-1.7"))
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	t.Cleanup(server.Close)

	resolver := NewHTTPResolver()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		blob, err := resolver.Fetch(context.Background(), server.URL+"/report.pdf")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		defer blob.Body.Close()

		content, err := io.ReadAll(blob.Body)
		if err != nil {
			t.Fatalf("read body error = %v", err)
		}
		if string(content) != "%PDF-1.7" {
			t.Fatalf("content = %q, want %%PDF-1.7", content)
		}
		if blob.ContentType != "application/pdf" {
			t.Fatalf("ContentType = %q, want application/pdf", blob.ContentType)
		}
		if blob.Size != int64(len("%PDF-1.7")) {
			t.Fatalf("Size = %d, want %d", blob.Size, len("%PDF-1.7"))
		}
	})

	tests := []struct {
		name          string
		path          string
		wantKind      Kind
		wantStatus    int
		wantTransient bool
	}{
		{name: "not found", path: "/gone", wantKind: KindNotFound, wantStatus: http.StatusNotFound},
		{name: "server unavailable", path: "/busy", wantKind: KindTransport, wantStatus: http.StatusServiceUnavailable, wantTransient: true},
		{name: "forbidden", path: "/forbidden", wantKind: KindTransport, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := resolver.Fetch(context.Background(), server.URL+tt.path)
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if fetchErr.Kind != tt.wantKind {
				t.Fatalf("Kind = %s, want %s", fetchErr.Kind, tt.wantKind)
			}
			if fetchErr.StatusCode != tt.wantStatus {
				t.Fatalf("StatusCode = %d, want %d", fetchErr.StatusCode, tt.wantStatus)
			}
			if fetchErr.Transient != tt.wantTransient {
				t.Fatalf("Transient = %v, want %v", fetchErr.Transient, tt.wantTransient)
			}
		})
	}
}

func TestHTTPResolverFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPResolver().Fetch(ctx, server.URL+"/slow")
	if KindOf(err) != KindTimeout {
		t.Fatalf("KindOf() = %s, want %s (err=%v)", KindOf(err), KindTimeout, err)
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || !fetchErr.Transient {
		t.Fatalf("expected transient FetchError, got %v", err)
	}
}

func TestNewHTTPResolverWithClientRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPResolverWithClient(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
