// Package web serves the server-rendered preview of a finished pdf-to-image
// job: page tiles, a range field and the download buttons.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/export"
	"github.com/local/pdftools/internal/pagerange"
	"github.com/local/pdftools/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// InvalidRangeAlert is shown when a selection resolves to no pages.
const InvalidRangeAlert = "Please enter a valid page range"

// Exporter is the subset of *export.Exporter the preview uses.
type Exporter interface {
	Download(ctx context.Context, m export.Manifest, index int) (*export.Bundle, error)
	ExportRange(ctx context.Context, m export.Manifest, expr string) (*export.Bundle, error)
	ExportSelection(ctx context.Context, m export.Manifest, sel pagerange.Selection) (*export.Bundle, error)
}

// Options configures Web.
type Options struct {
	// ArtifactURL returns the public URL of page n (1-based) of a job.
	ArtifactURL func(jobID string, n int) string
	// Username and Password enable HTTP basic auth when both are set.
	Username string
	Password string
}

type Web struct {
	tpl         *template.Template
	jobs        store.Store
	exporter    Exporter
	artifactURL func(jobID string, n int) string
	username    string
	password    string
}

func New(jobs store.Store, exp Exporter, opts Options) *Web {
	tpl := template.Must(template.ParseFS(templateFS, "templates/*.html"))

	artifactURL := opts.ArtifactURL
	if artifactURL == nil {
		artifactURL = func(jobID string, n int) string {
			return fmt.Sprintf("/api/jobs/%s/artifacts/%d", jobID, n)
		}
	}
	return &Web{
		tpl:         tpl,
		jobs:        jobs,
		exporter:    exp,
		artifactURL: artifactURL,
		username:    opts.Username,
		password:    opts.Password,
	}
}

// RegisterRoutes mounts the preview under /web.
func (w *Web) RegisterRoutes(r chi.Router) {
	r.Route("/web", func(r chi.Router) {
		r.Use(w.requireAuth)
		r.Get("/jobs/{id}", w.handlePreview)
		r.Post("/jobs/{id}", w.handleAction)
	})
}

func (w *Web) requireAuth(next http.Handler) http.Handler {
	if w.username == "" || w.password == "" {
		return next
	}
	return http.HandlerFunc(func(wr http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(w.username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(w.password)) != 1 {
			wr.Header().Set("WWW-Authenticate", `Basic realm="pdftools"`)
			http.Error(wr, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(wr, r)
	})
}

type tile struct {
	Number   int
	Name     string
	URL      string
	Selected bool
}

type page struct {
	JobID    string
	FileName string
	Status   string
	Message  string
	Tiles    []tile
	// RangeText is the canonical text of the current selection. It is echoed
	// back as rendered_range to detect edits to the range field.
	RangeText string
	Selected  int
	Alert     string
	Ignored   []string
	Retry     string
	View      *tile
}

func (w *Web) handlePreview(wr http.ResponseWriter, r *http.Request) {
	job, ok := w.loadJob(wr, r)
	if !ok {
		return
	}
	view := 0
	if v := r.URL.Query().Get("page"); v != "" {
		view, _ = strconv.Atoi(v)
	}
	w.renderJob(wr, http.StatusOK, job, pagerange.NewSelection(len(job.Artifacts)), func(p *page) {
		if view >= 1 && view <= len(p.Tiles) {
			p.View = &p.Tiles[view-1]
		}
	})
}

func (w *Web) handleAction(wr http.ResponseWriter, r *http.Request) {
	job, ok := w.loadJob(wr, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(wr, "invalid form", http.StatusBadRequest)
		return
	}
	if job.Status != store.StateSuccess {
		w.renderJob(wr, http.StatusConflict, job, pagerange.Selection{}, nil)
		return
	}

	m := job.Manifest()
	sel, ignored, textWon := unify(r.PostForm, m.Len())
	rangeText := strings.TrimSpace(r.PostForm.Get("range"))

	switch r.PostForm.Get("action") {
	case "all":
		b, err := w.exporter.Download(r.Context(), m, export.AllPages)
		w.respond(wr, job, sel, ignored, b, err)

	case "export":
		if sel.Empty() {
			w.renderJob(wr, http.StatusUnprocessableEntity, job, sel, func(p *page) {
				p.Alert = InvalidRangeAlert
				p.Ignored = ignored
			})
			return
		}
		var (
			b   *export.Bundle
			err error
		)
		if textWon {
			b, err = w.exporter.ExportRange(r.Context(), m, rangeText)
		} else {
			b, err = w.exporter.ExportSelection(r.Context(), m, sel)
		}
		w.respond(wr, job, sel, ignored, b, err)

	default: // update
		w.renderJob(wr, http.StatusOK, job, sel, func(p *page) {
			if sel.Empty() && (textWon || len(r.PostForm["page"]) > 0) {
				p.Alert = InvalidRangeAlert
			}
			p.Ignored = ignored
		})
	}
}

// unify resolves the posted form to one selection. The range text wins when
// it differs from the text the page was rendered with; otherwise the
// checkboxes win.
func unify(form map[string][]string, n int) (pagerange.Selection, []string, bool) {
	get := func(k string) string {
		if v := form[k]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	text := get("range")
	if text != get("rendered_range") {
		sel, ignored := pagerange.ParseDetailed(text, n)
		return sel, ignored, true
	}

	sel := pagerange.NewSelection(n)
	for _, v := range form["page"] {
		if p, err := strconv.Atoi(v); err == nil {
			sel.Set(p-1, true)
		}
	}
	return sel, nil, false
}

func (w *Web) respond(wr http.ResponseWriter, job store.Job, sel pagerange.Selection, ignored []string, b *export.Bundle, err error) {
	if err == nil {
		wr.Header().Set("Content-Type", b.ContentType)
		wr.Header().Set("Content-Disposition", export.ContentDisposition("attachment", b.Name))
		wr.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
		_, _ = wr.Write(b.Data)
		return
	}

	var fe *export.FetchError
	switch {
	case errors.As(err, &fe):
		log.Warn().Err(err).Str("job_id", job.ID).Msg("preview export failed")
		w.renderJob(wr, http.StatusBadGateway, job, sel, func(p *page) {
			p.Retry = fmt.Sprintf("Could not retrieve page %d (%s). Please try again.", fe.Index+1, fe.Name)
			p.Ignored = ignored
		})
	case errors.Is(err, export.ErrEmptySelection):
		w.renderJob(wr, http.StatusUnprocessableEntity, job, sel, func(p *page) {
			p.Alert = InvalidRangeAlert
			p.Ignored = ignored
		})
	default:
		log.Error().Err(err).Str("job_id", job.ID).Msg("preview export failed")
		http.Error(wr, "export failed", http.StatusInternalServerError)
	}
}

func (w *Web) loadJob(wr http.ResponseWriter, r *http.Request) (store.Job, bool) {
	id := chi.URLParam(r, "id")
	job, err := w.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(wr, "job not found", http.StatusNotFound)
			return store.Job{}, false
		}
		log.Error().Err(err).Str("job_id", id).Msg("load job failed")
		http.Error(wr, "job store unavailable", http.StatusServiceUnavailable)
		return store.Job{}, false
	}
	return job, true
}

func (w *Web) renderJob(wr http.ResponseWriter, status int, job store.Job, sel pagerange.Selection, edit func(*page)) {
	p := page{
		JobID:     job.ID,
		FileName:  job.FileName,
		Status:    string(job.Status),
		Message:   job.Message,
		RangeText: sel.String(),
		Selected:  sel.Len(),
	}
	if job.Status == store.StateSuccess {
		for i, a := range job.Artifacts {
			p.Tiles = append(p.Tiles, tile{
				Number:   i + 1,
				Name:     a.Name,
				URL:      w.artifactURL(job.ID, i+1),
				Selected: sel.Has(i),
			})
		}
	}
	if edit != nil {
		edit(&p)
	}

	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	wr.WriteHeader(status)
	if err := w.tpl.ExecuteTemplate(wr, "preview.html", p); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("render preview failed")
	}
}
