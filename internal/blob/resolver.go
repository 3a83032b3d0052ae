package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

// Blob is an opened byte stream. Callers must close Body.
type Blob struct {
	Body        io.ReadCloser
	ContentType string
	// Size is the advertised length, -1 when unknown.
	Size int64
}

// Resolver turns an opaque locator into a readable stream.
type Resolver interface {
	Fetch(ctx context.Context, locator string) (*Blob, error)
}

// Mux dispatches locators to resolvers by URL scheme.
type Mux struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

var _ Resolver = (*Mux)(nil)

func NewMux() *Mux {
	return &Mux{resolvers: make(map[string]Resolver)}
}

// Handle registers r for the given schemes, replacing earlier registrations.
func (m *Mux) Handle(r Resolver, schemes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, scheme := range schemes {
		m.resolvers[strings.ToLower(scheme)] = r
	}
}

func (m *Mux) Fetch(ctx context.Context, locator string) (*Blob, error) {
	parsed, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Locator: locator, Message: "malformed locator", Cause: err}
	}

	m.mu.RLock()
	resolver, ok := m.resolvers[strings.ToLower(parsed.Scheme)]
	m.mu.RUnlock()
	if !ok {
		return nil, &FetchError{
			Kind:    KindTransport,
			Locator: locator,
			Message: fmt.Sprintf("unsupported scheme %q", parsed.Scheme),
		}
	}

	return resolver.Fetch(ctx, locator)
}
