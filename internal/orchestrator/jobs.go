package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/export"
	"github.com/local/pdftools/internal/pagerange"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/store"
)

type jobView struct {
	store.Job
	Artifacts []export.Artifact `json:"artifacts"`
	ExportURL string            `json:"export_url,omitempty"`
}

func (o *Orchestrator) loadJob(w http.ResponseWriter, r *http.Request) (store.Job, bool) {
	id := chi.URLParam(r, "id")
	job, err := o.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found", nil)
			return store.Job{}, false
		}
		log.Error().Err(err).Str("job_id", id).Msg("load job failed")
		writeError(w, http.StatusServiceUnavailable, "job store unavailable", nil)
		return store.Job{}, false
	}
	return job, true
}

// loadFinished is loadJob that also requires the job to have succeeded.
func (o *Orchestrator) loadFinished(w http.ResponseWriter, r *http.Request) (store.Job, bool) {
	job, ok := o.loadJob(w, r)
	if !ok {
		return store.Job{}, false
	}
	if job.Status != store.StateSuccess {
		writeError(w, http.StatusConflict, "job is not finished", map[string]any{"status": job.Status})
		return store.Job{}, false
	}
	return job, true
}

func (o *Orchestrator) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := o.loadJob(w, r)
	if !ok {
		return
	}
	view := jobView{Job: job, Artifacts: []export.Artifact{}}
	if job.Status == store.StateSuccess {
		// internal storage URLs never leave the server
		for i, a := range job.Artifacts {
			view.Artifacts = append(view.Artifacts, export.Artifact{URL: o.ArtifactURL(job.ID, i+1), Name: a.Name})
		}
		view.ExportURL = fmt.Sprintf("%s/api/jobs/%s/export", o.cfg.publicBaseURL, job.ID)
	}
	writeJSON(w, http.StatusOK, view)
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := o.loadJob(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := o.deps.Queue.Cancel(ctx, job.ID); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("cancel failed")
		writeError(w, http.StatusServiceUnavailable, "cancel failed", nil)
		return
	}

	if !job.Status.Terminal() || job.Status == store.StateSuccess {
		end := time.Now()
		job.Status = store.StateCancelled
		job.Message = "cancelled"
		job.End = &end
	}
	job.Artifacts = nil
	if err := o.deps.Jobs.Save(ctx, job); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("status update after cancel failed")
	}

	deleted, err := o.deps.Storage.DeletePrefix(ctx, storage.JobPrefix(job.ID))
	if err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("artifact cleanup failed")
	}
	log.Info().Str("job_id", job.ID).Int("deleted", deleted).Msg("job cancelled")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": job.ID, "status": job.Status})
}

// handleArtifact serves page {index} (1-based). ?download=1 asks for an
// attachment instead of inline display.
func (o *Orchestrator) handleArtifact(w http.ResponseWriter, r *http.Request) {
	job, ok := o.loadFinished(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "invalid page index", nil)
		return
	}

	b, err := o.deps.Exporter.ExportSingle(r.Context(), job.Manifest(), n-1)
	if err != nil {
		o.writeExportError(w, job, err, nil)
		return
	}
	disposition := "inline"
	if r.URL.Query().Get("download") != "" {
		disposition = "attachment"
	}
	writeBundle(w, b, disposition)
}

type exportRequest struct {
	Range string `json:"range"`
	All   bool   `json:"all"`
	// Index follows the download buttons: -1 for everything, otherwise a
	// 0-based artifact position.
	Index *int `json:"index"`
	// Pages are 1-based page numbers picked individually.
	Pages []int `json:"pages"`
}

func (o *Orchestrator) handleExport(w http.ResponseWriter, r *http.Request) {
	job, ok := o.loadFinished(w, r)
	if !ok {
		return
	}
	var req exportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	m := job.Manifest()
	var (
		b       *export.Bundle
		err     error
		ignored []string
	)
	switch {
	case req.Index != nil:
		b, err = o.deps.Exporter.Download(r.Context(), m, *req.Index)
	case req.All:
		b, err = o.deps.Exporter.ExportAll(r.Context(), m)
	case len(req.Pages) > 0:
		idx := make([]int, 0, len(req.Pages))
		for _, p := range req.Pages {
			idx = append(idx, p-1)
		}
		b, err = o.deps.Exporter.ExportSelection(r.Context(), m, pagerange.FromIndices(m.Len(), idx))
	default:
		_, ignored = pagerange.ParseDetailed(req.Range, m.Len())
		b, err = o.deps.Exporter.ExportRange(r.Context(), m, req.Range)
	}
	if err != nil {
		o.writeExportError(w, job, err, ignored)
		return
	}
	if len(ignored) > 0 {
		w.Header().Set("X-Ignored-Tokens", strings.Join(ignored, ", "))
	}
	writeBundle(w, b, "attachment")
}

func (o *Orchestrator) writeExportError(w http.ResponseWriter, job store.Job, err error, ignored []string) {
	var fe *export.FetchError
	switch {
	case errors.Is(err, export.ErrEmptySelection):
		if ignored == nil {
			ignored = []string{}
		}
		writeError(w, http.StatusUnprocessableEntity, export.ErrEmptySelection.Error(), map[string]any{"ignored": ignored})
	case errors.Is(err, export.ErrIndexOutOfRange):
		writeError(w, http.StatusNotFound, "page not found", map[string]any{"pages": job.Manifest().Len()})
	case errors.As(err, &fe):
		log.Warn().Err(err).Str("job_id", job.ID).Msg("export failed")
		writeError(w, http.StatusBadGateway, fmt.Sprintf("could not retrieve page %d", fe.Index+1), map[string]any{
			"artifact": fe.Name,
			"page":     fe.Index + 1,
			"retry":    true,
		})
	default:
		log.Error().Err(err).Str("job_id", job.ID).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed", nil)
	}
}

func writeBundle(w http.ResponseWriter, b *export.Bundle, disposition string) {
	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Content-Disposition", export.ContentDisposition(disposition, b.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Data)
}
