package blob

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3Resolver.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Resolver streams s3://bucket/key locators.
type S3Resolver struct {
	client S3API
}

var _ Resolver = (*S3Resolver)(nil)

func NewS3Resolver(client S3API) *S3Resolver {
	return &S3Resolver{client: client}
}

func (r *S3Resolver) Fetch(ctx context.Context, locator string) (*Blob, error) {
	bucket, key, err := parseS3Locator(locator)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Locator: locator, Message: "malformed s3 locator", Cause: err}
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(locator, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}

	return &Blob{
		Body:        out.Body,
		ContentType: mediaType(aws.ToString(out.ContentType)),
		Size:        size,
	}, nil
}

func parseS3Locator(locator string) (string, string, error) {
	parsed, err := url.Parse(locator)
	if err != nil {
		return "", "", err
	}

	key := strings.TrimPrefix(parsed.Path, "/")
	if !strings.EqualFold(parsed.Scheme, "s3") || parsed.Host == "" || key == "" {
		return "", "", errors.New("expected s3://bucket/key")
	}
	return parsed.Host, key, nil
}

func classifyS3Error(locator string, err error) error {
	if isTimeout(err) {
		return timeoutError(locator, err)
	}

	var (
		noKey    *types.NoSuchKey
		noBucket *types.NoSuchBucket
	)
	if errors.As(err, &noKey) || errors.As(err, &noBucket) {
		return notFoundError(locator, http.StatusNotFound, err)
	}

	var responseErr interface{ HTTPStatusCode() int }
	if errors.As(err, &responseErr) && responseErr.HTTPStatusCode() == http.StatusNotFound {
		return notFoundError(locator, http.StatusNotFound, err)
	}

	transient := !errors.Is(err, context.Canceled)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		transient = apiErr.ErrorFault() != smithy.FaultClient || apiErr.ErrorCode() == "SlowDown"
	}

	fetchErr := &FetchError{Kind: KindTransport, Locator: locator, Message: "get object failed", Transient: transient, Cause: err}
	if responseErr != nil {
		fetchErr.StatusCode = responseErr.HTTPStatusCode()
	}
	return fetchErr
}
