package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/converter"
	"github.com/local/pdftools/internal/export"
	"github.com/local/pdftools/internal/queue"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/store"
)

// Messages returned by the generate endpoint.
const (
	msgNoFiles         = "No files provided"
	msgUnsupportedTool = "Unsupported tool"
	msgGenerateFailed  = "Failed to generate PDF"
	msgBusy            = "Too many conversions in progress, please retry shortly"
)

// handleGenerate accepts multipart/form-data with fields tool, files (one or
// more), and optional pages and password.
func (o *Orchestrator) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, o.cfg.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	tool, ok := converter.Lookup(r.FormValue("tool"))
	if !ok {
		writeError(w, http.StatusBadRequest, msgUnsupportedTool, nil)
		return
	}

	files, err := readFiles(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, msgNoFiles, nil)
		return
	}

	release, ok := o.deps.Limiter.Allow(tool.ID)
	if !ok {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, msgBusy, nil)
		return
	}
	defer release()

	if tool.Async {
		o.createRenderJob(w, r, tool, files[0])
		return
	}

	out, err := o.deps.Converter.Generate(r.Context(), tool.ID, files, converter.Options{
		Pages:    r.FormValue("pages"),
		Password: r.FormValue("password"),
	})
	if err != nil {
		status, msg := generateError(err)
		writeError(w, status, msg, nil)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", export.ContentDisposition("attachment", out.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

func generateError(err error) (int, string) {
	var inErr *converter.InputError
	switch {
	case errors.Is(err, converter.ErrNoFiles):
		return http.StatusBadRequest, msgNoFiles
	case errors.Is(err, converter.ErrUnsupportedTool):
		return http.StatusBadRequest, msgUnsupportedTool
	case errors.As(err, &inErr):
		return http.StatusBadRequest, inErr.Error()
	case errors.Is(err, converter.ErrNoPages), errors.Is(err, converter.ErrPasswordRequired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, converter.ErrOfficeUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, msgGenerateFailed
	}
}

// readFiles collects uploads from "files" and "files[]", in form order.
func readFiles(form *multipart.Form) ([]converter.Input, error) {
	var out []converter.Input
	for _, field := range []string{"files", "files[]"} {
		for _, fh := range form.File[field] {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("cannot read %s", fh.Filename)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("cannot read %s", fh.Filename)
			}
			out = append(out, converter.Input{Name: fh.Filename, Data: data})
		}
	}
	return out, nil
}

type jobCreated struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Pages     int    `json:"pages"`
	StatusURL string `json:"status_url"`
}

// createRenderJob stores the uploaded PDF and queues it for the render workers.
func (o *Orchestrator) createRenderJob(w http.ResponseWriter, r *http.Request, tool converter.Tool, file converter.Input) {
	if err := o.deps.Converter.CheckInputs(tool, []converter.Input{file}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	pages, err := converter.PageCount(file.Data)
	if err != nil {
		log.Warn().Err(err).Str("file", file.Name).Msg("page count failed")
		writeError(w, http.StatusBadRequest, "invalid PDF: "+err.Error(), nil)
		return
	}

	ctx := r.Context()
	jobID := uuid.NewString()
	sourceKey := storage.JobKey(jobID, "source.pdf")
	if _, err := o.deps.Storage.Put(ctx, sourceKey, file.Data, "application/pdf"); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("store upload failed")
		writeError(w, http.StatusServiceUnavailable, "storage unavailable", nil)
		return
	}

	job := store.Job{
		ID:        jobID,
		Tool:      tool.ID,
		Status:    store.StateQueued,
		Message:   "queued",
		FileName:  file.Name,
		Created:   time.Now(),
		Pages:     pages,
		SourceKey: sourceKey,
	}
	if err := o.deps.Jobs.Save(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("save job failed")
		o.discard(jobID)
		writeError(w, http.StatusServiceUnavailable, "job store unavailable", nil)
		return
	}
	if err := o.deps.Queue.Enqueue(ctx, queue.Task{JobID: jobID}); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("enqueue failed")
		o.discard(jobID)
		writeError(w, http.StatusServiceUnavailable, "queue unavailable", nil)
		return
	}

	log.Info().Str("job_id", jobID).Str("file", file.Name).Int("pages", pages).Msg("render job created")
	writeJSON(w, http.StatusAccepted, jobCreated{
		JobID:     jobID,
		Status:    string(store.StateQueued),
		Pages:     pages,
		StatusURL: fmt.Sprintf("%s/api/jobs/%s", o.cfg.publicBaseURL, jobID),
	})
}

// discard removes what a half-created job left behind.
func (o *Orchestrator) discard(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := o.deps.Storage.DeletePrefix(ctx, storage.JobPrefix(jobID)); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("cleanup of failed job failed")
	}
	_ = o.deps.Jobs.Delete(ctx, jobID)
}
