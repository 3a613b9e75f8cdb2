package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/filetype"
	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/pagerange"
)

// Fetcher retrieves the binary content behind an artifact URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithCompressionLevel sets the Deflate level used for archives.
func WithCompressionLevel(level int) Option {
	return func(e *Exporter) { e.level = level }
}

// WithClock overrides the timestamp written into archive entries.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// Exporter builds bundles. Retrieval is sequential in ascending page order and
// all-or-nothing: the first failed fetch aborts the export with a *FetchError
// and no bundle. Concurrent exports share no state.
type Exporter struct {
	fetcher  Fetcher
	detector *filetype.Detector
	level    int
	now      func() time.Time
}

// New creates an Exporter reading artifacts through f.
func New(f Fetcher, opts ...Option) *Exporter {
	e := &Exporter{
		fetcher:  f,
		detector: filetype.New(),
		level:    flate.DefaultCompression,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BundleName derives the archive name for a partial export from the range
// text the user typed. Only digits, commas and hyphens are kept.
func BundleName(rangeText string) string {
	return "pages-" + rangeChars(rangeText) + ".zip"
}

func rangeChars(text string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '-' {
			return r
		}
		return -1
	}, pagerange.Normalize(text))
}

// Download serves the per-page and "download all" buttons: index AllPages
// bundles everything, any other index downloads that artifact directly.
func (e *Exporter) Download(ctx context.Context, m Manifest, index int) (*Bundle, error) {
	if index == AllPages {
		return e.ExportAll(ctx, m)
	}
	return e.ExportSingle(ctx, m, index)
}

// ExportAll bundles every artifact in manifest order.
func (e *Exporter) ExportAll(ctx context.Context, m Manifest) (*Bundle, error) {
	indices := make([]int, m.Len())
	for i := range indices {
		indices[i] = i
	}
	return e.archive(ctx, m, indices, AllPagesBundleName, "all")
}

// ExportRange parses expr against the manifest and bundles the selected
// artifacts. The bundle is named after expr.
func (e *Exporter) ExportRange(ctx context.Context, m Manifest, expr string) (*Bundle, error) {
	sel := pagerange.Parse(expr, m.Len())
	return e.archive(ctx, m, sel.Indices(), BundleName(expr), "selection")
}

// ExportSelection bundles the artifacts selected in sel, named after the
// selection's canonical range text.
func (e *Exporter) ExportSelection(ctx context.Context, m Manifest, sel pagerange.Selection) (*Bundle, error) {
	snapshot := sel.Clone()
	return e.archive(ctx, m, snapshot.Indices(), BundleName(snapshot.String()), "selection")
}

// ExportSingle returns one artifact's content without archive wrapping.
func (e *Exporter) ExportSingle(ctx context.Context, m Manifest, index int) (*Bundle, error) {
	a, ok := m.At(index)
	if !ok {
		metrics.IncExport("single", "invalid")
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, m.Len())
	}
	data, err := e.fetchOne(ctx, index, a)
	if err != nil {
		metrics.IncExport("single", "fetch_error")
		return nil, err
	}
	metrics.IncExport("single", "success")
	return &Bundle{
		Name:        a.Name,
		ContentType: e.detector.ContentType(data),
		Data:        data,
		Entries:     []string{a.Name},
	}, nil
}

func (e *Exporter) archive(ctx context.Context, m Manifest, indices []int, name, kind string) (*Bundle, error) {
	valid := indices[:0:0]
	for _, i := range indices {
		if i >= 0 && i < m.Len() {
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 {
		metrics.IncExport(kind, "empty")
		return nil, ErrEmptySelection
	}

	entries := make([]archiveEntry, 0, len(valid))
	names := make([]string, 0, len(valid))
	for _, i := range valid {
		a, _ := m.At(i)
		data, err := e.fetchOne(ctx, i, a)
		if err != nil {
			metrics.IncExport(kind, "fetch_error")
			log.Warn().Err(err).Str("bundle", name).Int("page", i+1).Msg("export aborted")
			return nil, err
		}
		entries = append(entries, archiveEntry{name: a.Name, data: data})
		names = append(names, a.Name)
	}

	data, err := writeArchive(entries, e.level, e.now())
	if err != nil {
		metrics.IncExport(kind, "error")
		return nil, err
	}

	metrics.IncExport(kind, "success")
	log.Info().Str("bundle", name).Int("entries", len(entries)).Int("bytes", len(data)).Msg("export bundle assembled")
	return &Bundle{Name: name, ContentType: zipContentType, Data: data, Entries: names}, nil
}

func (e *Exporter) fetchOne(ctx context.Context, index int, a Artifact) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Index: index, Name: a.Name, URL: a.URL, Err: err}
	}
	data, err := e.fetcher.Fetch(ctx, a.URL)
	if err != nil {
		return nil, &FetchError{Index: index, Name: a.Name, URL: a.URL, Err: err}
	}
	return data, nil
}
