package statuscheck

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/local/pdftools/internal/converter"
	"github.com/local/pdftools/internal/imagerender"
)

// Pinger models the minimal capability we need from a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker aggregates readiness checks for the service's dependencies.
type Checker struct {
	queue       Pinger
	queueKind   string
	storage     Pinger
	storageKind string
	office      *converter.LibreOffice

	renderOnce sync.Once
	renderErr  error
}

// Options configures the Checker.
type Options struct {
	Queue Pinger
	// QueueKind is "redis" or "memory".
	QueueKind   string
	Storage     Pinger
	StorageKind string
	Office      *converter.LibreOffice
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Queue       Status `json:"queue"`
	Storage     Status `json:"storage"`
	LibreOffice Status `json:"libreoffice"`
	MuPDF       Status `json:"mupdf"`
}

// Ready reports whether the services every request path needs are up.
// LibreOffice only backs word-to-pdf and is left out.
func (s Summary) Ready() bool {
	return s.Queue.OK && s.Storage.OK && s.MuPDF.OK
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		queue:       opts.Queue,
		queueKind:   opts.QueueKind,
		storage:     opts.Storage,
		storageKind: opts.StorageKind,
		office:      opts.Office,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Queue:       ping(ctx, c.queue, c.queueKind, 2*time.Second),
		Storage:     ping(ctx, c.storage, c.storageKind, 5*time.Second),
		LibreOffice: c.checkLibreOffice(ctx),
		MuPDF:       c.checkMuPDF(),
	}
}

func ping(ctx context.Context, p Pinger, kind string, timeout time.Duration) Status {
	if p == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if kind == "" {
		return Status{OK: true, Message: "Connected"}
	}
	return Status{OK: true, Message: "Connected (" + kind + ")"}
}

func (c *Checker) checkLibreOffice(ctx context.Context) Status {
	if c.office == nil || !c.office.Available() {
		return Status{OK: false, Message: "Binary not found"}
	}
	v, err := c.office.Version(ctx)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: v}
}

// checkMuPDF renders a generated one-page document once per process.
func (c *Checker) checkMuPDF() Status {
	c.renderOnce.Do(func() {
		pdf, err := converter.TextToPDF("status")
		if err != nil {
			c.renderErr = err
			return
		}
		_, c.renderErr = imagerender.RenderPage(pdf, 1, imagerender.Options{DPI: 18})
	})
	if c.renderErr != nil {
		return Status{OK: false, Message: trimError(c.renderErr)}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
