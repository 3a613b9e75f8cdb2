// Package fetch retrieves artifact content by URL, routing on the URL scheme.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/metrics"
)

// ErrUnsupportedScheme is returned for URLs no source is registered for.
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// ErrTooLarge is returned when an artifact exceeds the configured size cap.
var ErrTooLarge = errors.New("artifact exceeds size limit")

// Source fetches URLs of the schemes it is registered for.
type Source interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f SourceFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) { return f(ctx, rawURL) }

// Router dispatches Fetch calls to the Source registered for the URL scheme.
// data: URLs are always handled in place.
type Router struct {
	sources  map[string]Source
	maxBytes int64
	closers  []func()
}

// Option configures a Router.
type Option func(*Router)

// WithSource registers src for the given schemes, e.g. "s3" or "file".
func WithSource(src Source, schemes ...string) Option {
	return func(r *Router) {
		for _, s := range schemes {
			r.sources[strings.ToLower(s)] = src
		}
	}
}

// WithHTTP registers an HTTP client for the http and https schemes.
func WithHTTP(opts HTTPOptions) Option {
	return func(r *Router) {
		c := newHTTPSource(opts, r.maxBytes)
		r.sources["http"] = c
		r.sources["https"] = c
		r.closers = append(r.closers, c.Close)
	}
}

// WithMaxBytes caps the size of a single artifact. Apply it before WithHTTP.
func WithMaxBytes(n int64) Option {
	return func(r *Router) { r.maxBytes = n }
}

// New builds a Router.
func New(opts ...Option) *Router {
	r := &Router{sources: map[string]Source{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch returns the content behind rawURL.
func (r *Router) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	scheme := schemeOf(rawURL)

	var (
		data []byte
		err  error
	)
	switch src, ok := r.sources[scheme]; {
	case scheme == "data":
		data, err = decodeDataURL(rawURL, r.maxBytes)
	case ok:
		data, err = src.Fetch(ctx, rawURL)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	if err == nil && r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		err = fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	if err != nil {
		metrics.IncFetch(scheme, "error")
		log.Debug().Err(err).Str("scheme", scheme).Msg("artifact fetch failed")
		return nil, err
	}
	metrics.IncFetch(scheme, "success")
	return data, nil
}

// Close releases HTTP clients.
func (r *Router) Close() {
	for _, c := range r.closers {
		c()
	}
}

func schemeOf(rawURL string) string {
	// data URLs can be large and are not worth a full parse
	if len(rawURL) >= 5 && strings.EqualFold(rawURL[:5], "data:") {
		return "data"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
