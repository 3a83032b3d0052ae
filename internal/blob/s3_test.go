package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeS3API struct {
	getObjectFn func(ctx context.Context, params *s3.GetObjectInput) (*s3.GetObjectOutput, error)
}

func (f *fakeS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return f.getObjectFn(ctx, params)
}

type statusError struct{ status int }

func (e statusError) Error() string       { return "http response error" }
func (e statusError) HTTPStatusCode() int { return e.status }

func TestS3ResolverFetch(t *testing.T) {
	t.Parallel()

	var gotBucket, gotKey string
	resolver := NewS3Resolver(&fakeS3API{
		getObjectFn: func(_ context.Context, params *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			gotBucket = aws.ToString(params.Bucket)
			gotKey = aws.ToString(params.Key)
			return &s3.GetObjectOutput{
				Body:          io.NopCloser(strings.NewReader("a,b\n1,2\n")),
				ContentType:   aws.String("text/csv"),
				ContentLength: aws.Int64(8),
			}, nil
		},
	})

	blob, err := resolver.Fetch(context.Background(), "s3://reports/2026/10/export.csv")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer blob.Body.Close()

	if gotBucket != "reports" || gotKey != "2026/10/export.csv" {
		t.Fatalf("bucket/key = %q/%q, want reports/2026/10/export.csv", gotBucket, gotKey)
	}
	if blob.ContentType != "text/csv" {
		t.Fatalf("ContentType = %q, want text/csv", blob.ContentType)
	}
	if blob.Size != 8 {
		t.Fatalf("Size = %d, want 8", blob.Size)
	}
}

func TestS3ResolverFetchErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		locator       string
		err           error
		wantKind      Kind
		wantTransient bool
	}{
		{name: "malformed locator", locator: "s3://bucket-only", wantKind: KindTransport},
		{name: "no such key", locator: "s3://b/k", err: &types.NoSuchKey{}, wantKind: KindNotFound},
		{name: "no such bucket", locator: "s3://b/k", err: &types.NoSuchBucket{}, wantKind: KindNotFound},
		{name: "http 404", locator: "s3://b/k", err: statusError{status: http.StatusNotFound}, wantKind: KindNotFound},
		{name: "deadline", locator: "s3://b/k", err: context.DeadlineExceeded, wantKind: KindTimeout, wantTransient: true},
		{name: "access denied", locator: "s3://b/k", err: &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}, wantKind: KindTransport},
		{name: "slow down", locator: "s3://b/k", err: &smithy.GenericAPIError{Code: "SlowDown", Fault: smithy.FaultClient}, wantKind: KindTransport, wantTransient: true},
		{name: "internal error", locator: "s3://b/k", err: &smithy.GenericAPIError{Code: "InternalError", Fault: smithy.FaultServer}, wantKind: KindTransport, wantTransient: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			resolver := NewS3Resolver(&fakeS3API{
				getObjectFn: func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
					called = true
					return nil, tt.err
				},
			})

			_, err := resolver.Fetch(context.Background(), tt.locator)
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if fetchErr.Kind != tt.wantKind {
				t.Fatalf("Kind = %s, want %s", fetchErr.Kind, tt.wantKind)
			}
			if fetchErr.Transient != tt.wantTransient {
				t.Fatalf("Transient = %v, want %v", fetchErr.Transient, tt.wantTransient)
			}
			if tt.err == nil && called {
				t.Fatal("expected no GetObject call for malformed locator")
			}
		})
	}
}
