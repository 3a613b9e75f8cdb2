// Package orchestrator is the HTTP face of the service: the generate
// endpoint, render job status and the artifact export routes.
package orchestrator

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/local/pdftools/internal/converter"
	"github.com/local/pdftools/internal/export"
	"github.com/local/pdftools/internal/limiter"
	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/queue"
	"github.com/local/pdftools/internal/statuscheck"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/store"
)

// Dependencies are the collaborators the handlers call into.
type Dependencies struct {
	Converter *converter.Converter
	Limiter   *limiter.Limiter
	Queue     queue.Queue
	Jobs      store.Store
	Storage   storage.Store
	Exporter  *export.Exporter
	Status    *statuscheck.Checker
	// Web, when set, mounts the HTML preview.
	Web interface{ RegisterRoutes(chi.Router) }
}

type config struct {
	addr          string
	publicBaseURL string
	maxUpload     int64
}

// Option is a functional option for Orchestrator configuration
type Option func(*config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *config) { c.addr = addr }
}

// WithPublicBaseURL sets the origin used in artifact URLs handed to clients.
// Without it URLs are root-relative.
func WithPublicBaseURL(u string) Option {
	return func(c *config) { c.publicBaseURL = u }
}

// WithMaxUploadMB caps the request body of the generate endpoint.
func WithMaxUploadMB(mb int) Option {
	return func(c *config) {
		if mb > 0 {
			c.maxUpload = int64(mb) << 20
		}
	}
}

type Orchestrator struct {
	deps Dependencies
	cfg  config
}

func New(deps Dependencies, opts ...Option) *Orchestrator {
	cfg := config{addr: ":8080", maxUpload: 64 << 20}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// MountWeb sets the HTML preview served next to the API. Call it before Routes.
func (o *Orchestrator) MountWeb(w interface{ RegisterRoutes(chi.Router) }) {
	o.deps.Web = w
}

// ArtifactURL is the public URL of page n (1-based) of a job.
func (o *Orchestrator) ArtifactURL(jobID string, n int) string {
	return fmt.Sprintf("%s/api/jobs/%s/artifacts/%d", o.cfg.publicBaseURL, jobID, n)
}

// Routes builds the router.
func (o *Orchestrator) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", o.handleStatus)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/tools", o.handleTools)
		r.Post("/pdf/generate", o.handleGenerate)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", o.handleGetJob)
			r.Delete("/", o.handleCancelJob)
			r.Get("/artifacts/{index}", o.handleArtifact)
			r.Post("/export", o.handleExport)
		})
	})

	if o.deps.Web != nil {
		o.deps.Web.RegisterRoutes(r)
	}
	return r
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer wraps the router of o in an http.Server.
func NewServer(o *Orchestrator) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              o.cfg.addr,
			Handler:           o.Routes(),
			ReadHeaderTimeout: 15 * time.Second,
		},
	}
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "status checks not configured", nil)
		return
	}
	s := o.deps.Status.Summary(r.Context())
	code := http.StatusOK
	if !s.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, s)
}

type toolView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Accepts     []string `json:"accepts"`
	Async       bool     `json:"async"`
}

func (o *Orchestrator) handleTools(w http.ResponseWriter, _ *http.Request) {
	var out []toolView
	for _, t := range converter.Tools() {
		v := toolView{ID: t.ID, Name: t.Name, Description: t.Description, Async: t.Async}
		for _, k := range t.Accepts {
			v.Accepts = append(v.Accepts, string(k))
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}
