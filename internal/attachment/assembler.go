package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/blob"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/mail"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxSize      = 25 << 20
)

// ErrTooLarge is returned when an attachment exceeds the configured size cap.
var ErrTooLarge = errors.New("attachment exceeds size limit")

// Assembler resolves attachment references into in-memory attachments, one at a time.
type Assembler struct {
	resolver     blob.Resolver
	fetchTimeout time.Duration
	maxSize      int64
	logger       *zap.Logger
	metrics      *observability.Metrics
}

func NewAssembler(resolver blob.Resolver, fetchTimeout time.Duration, maxSize int64, logger *zap.Logger, metrics *observability.Metrics) (*Assembler, error) {
	if resolver == nil {
		return nil, fmt.Errorf("blob resolver is required")
	}
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Assembler{
		resolver:     resolver,
		fetchTimeout: fetchTimeout,
		maxSize:      maxSize,
		logger:       logger,
		metrics:      metrics,
	}, nil
}

// Assemble returns the attachments that could be fetched, in reference order. Failures are
// logged and the reference is left out; the caller always gets a usable, possibly empty, list.
func (a *Assembler) Assemble(ctx context.Context, refs []domain.AttachmentRef) []mail.Attachment {
	attachments := make([]mail.Attachment, 0, len(refs))
	logger := observability.WithContextLogger(a.logger, ctx)

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}

		filename := resolveFilename(ref)
		attachment, err := a.fetch(ctx, ref.Locator, filename)
		if err != nil {
			kind := blob.KindOf(err)
			if errors.Is(err, ErrTooLarge) {
				kind = blob.KindTransport
			}
			a.metrics.IncAttachmentFailure(kind.String())
			logger.Warn("attachment omitted",
				zap.String("filename", filename),
				zap.String("kind", kind.String()),
				zap.Error(err),
			)
			continue
		}

		attachments = append(attachments, attachment)
	}

	return attachments
}

// fetch bounds both the resolve and the full read by the per-attachment timeout.
func (a *Assembler) fetch(ctx context.Context, locator string, filename string) (mail.Attachment, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	opened, err := a.resolver.Fetch(fetchCtx, locator)
	if err != nil {
		return mail.Attachment{}, err
	}
	defer opened.Body.Close()

	if opened.Size > a.maxSize {
		return mail.Attachment{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, opened.Size)
	}

	content, err := io.ReadAll(io.LimitReader(opened.Body, a.maxSize+1))
	if err != nil {
		if fetchCtx.Err() != nil {
			return mail.Attachment{}, &blob.FetchError{
				Kind:      blob.KindTimeout,
				Locator:   locator,
				Message:   "read timed out",
				Transient: true,
				Cause:     err,
			}
		}
		return mail.Attachment{}, &blob.FetchError{Kind: blob.KindTransport, Locator: locator, Message: "read failed", Cause: err}
	}
	if int64(len(content)) > a.maxSize {
		return mail.Attachment{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, a.maxSize)
	}

	return mail.Attachment{
		Filename:    filename,
		ContentType: resolveContentType(opened.ContentType, filename),
		Content:     content,
	}, nil
}

func resolveFilename(ref domain.AttachmentRef) string {
	if name := strings.TrimSpace(ref.Filename); name != "" {
		return name
	}

	if parsed, err := url.Parse(ref.Locator); err == nil {
		if base := path.Base(parsed.Path); base != "." && base != "/" {
			return base
		}
	}
	return "attachment"
}

func resolveContentType(resolved string, filename string) string {
	if mediaType := normalizeMediaType(resolved); mediaType != "" {
		return mediaType
	}
	if mediaType := normalizeMediaType(mime.TypeByExtension(filepath.Ext(filename))); mediaType != "" {
		return mediaType
	}
	return mail.DefaultContentType
}

func normalizeMediaType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return mediaType
}
