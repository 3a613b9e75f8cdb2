// Package dispatcher runs the render workers that turn queued pdf-to-image
// jobs into stored page artifacts.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/export"
	"github.com/local/pdftools/internal/imagerender"
	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/queue"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/store"
)

var errCancelled = errors.New("job cancelled")

// RenderFunc rasterises a PDF page by page. imagerender.RenderEach in production.
type RenderFunc func(pdf []byte, opts imagerender.Options, fn func(imagerender.Page) error) (int, error)

type Config struct {
	Concurrency   int
	RenderTimeout time.Duration
	// MaxAttempts bounds retries of transient failures.
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	Render       imagerender.Options
}

type Worker struct {
	cfg     Config
	q       queue.Queue
	jobs    store.Store
	storage storage.Store
	render  RenderFunc

	stop chan struct{}
	wg   sync.WaitGroup
}

// Option customises a Worker.
type Option func(*Worker)

// WithRenderFunc replaces the rasteriser.
func WithRenderFunc(fn RenderFunc) Option {
	return func(w *Worker) { w.render = fn }
}

func New(cfg Config, q queue.Queue, jobs store.Store, st storage.Store, opts ...Option) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	w := &Worker{
		cfg:     cfg,
		q:       q,
		jobs:    jobs,
		storage: st,
		render:  imagerender.RenderEach,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals the workers and waits for in-flight tasks, or for ctx.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("render-%d", id)
	log.Info().Int("worker", id).Msg("render worker started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stop
		cancel()
	}()

	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("render worker stopped")
			return
		default:
		}

		msg, ok, err := w.q.Dequeue(ctx, consumer, w.cfg.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if !ok {
			continue
		}

		w.Process(context.Background(), msg.Task)
		if err := w.q.Ack(context.Background(), msg.ID); err != nil {
			log.Warn().Err(err).Str("job_id", msg.Task.JobID).Msg("ack failed")
		}
	}
}

// Process runs one render task to a terminal state, or reschedules it after a
// transient failure. It never panics.
func (w *Worker) Process(ctx context.Context, task queue.Task) {
	logger := log.With().Str("job_id", task.JobID).Int("attempt", task.Attempt).Logger()

	err := w.safeRender(ctx, task)
	switch {
	case err == nil:
		return
	case errors.Is(err, errCancelled):
		logger.Warn().Msg("job cancelled; skipping")
		w.finish(ctx, task.JobID, store.StateCancelled, "cancelled")
		// pages stored after the API swept the job prefix
		if _, derr := w.storage.DeletePrefix(ctx, storage.JobPrefix(task.JobID)); derr != nil {
			logger.Warn().Err(derr).Msg("artifact cleanup after cancel failed")
		}
	case isTransientError(err) && task.Attempt+1 < w.cfg.MaxAttempts:
		next := queue.Task{JobID: task.JobID, Attempt: task.Attempt + 1}
		delay := w.cfg.RetryDelay * time.Duration(1<<task.Attempt)
		logger.Warn().Err(err).Dur("retry_in", delay).Msg("render failed; retrying")
		if qerr := w.q.EnqueueDelayed(ctx, next, time.Now().Add(delay)); qerr != nil {
			logger.Error().Err(qerr).Msg("reschedule failed")
			w.finish(ctx, task.JobID, store.StateFailed, err.Error())
			return
		}
		w.update(ctx, task.JobID, func(j *store.Job) {
			j.Status = store.StateQueued
			j.Message = "retrying after error: " + err.Error()
		})
	default:
		logger.Error().Err(err).Msg("render failed")
		w.finish(ctx, task.JobID, store.StateFailed, err.Error())
	}
}

func (w *Worker) safeRender(ctx context.Context, task queue.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job_id", task.JobID).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("render task panicked")
			err = &RenderError{JobID: task.JobID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return w.renderJob(ctx, task)
}

func (w *Worker) renderJob(ctx context.Context, task queue.Task) error {
	if w.cancelled(ctx, task.JobID) {
		return errCancelled
	}

	job, err := w.jobs.Get(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		log.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("job already finished; skipping")
		return nil
	}

	now := time.Now()
	job.Status = store.StateProcessing
	job.Progress = 5
	job.Message = "rendering pages"
	job.Start = &now
	if err := w.jobs.Save(ctx, job); err != nil {
		return &StorageError{Op: "save", Key: job.ID, Err: err}
	}

	src, err := w.storage.Get(ctx, job.SourceKey)
	if err != nil {
		return &StorageError{Op: "get", Key: job.SourceKey, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.RenderTimeout)
	defer cancel()

	var artifacts []export.Artifact
	total, err := w.render(src, w.cfg.Render, func(p imagerender.Page) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.cancelled(ctx, job.ID) {
			return errCancelled
		}
		key := storage.JobKey(job.ID, p.Name)
		url, err := w.storage.Put(ctx, key, p.Data, w.cfg.Render.Format.ContentType())
		if err != nil {
			return &StorageError{Op: "put", Key: key, Err: err}
		}
		artifacts = append(artifacts, export.Artifact{URL: url, Name: p.Name})
		return nil
	})
	if err != nil {
		metrics.IncRendered("failed", 1)
		if errors.Is(err, context.DeadlineExceeded) {
			return &RenderError{JobID: job.ID, Err: fmt.Errorf("render timeout after %v", w.cfg.RenderTimeout)}
		}
		var stErr *StorageError
		if errors.Is(err, errCancelled) || errors.As(err, &stErr) {
			return err
		}
		return &RenderError{JobID: job.ID, Err: err}
	}
	if total == 0 {
		return &RenderError{JobID: job.ID, Err: errors.New("document has no pages")}
	}
	metrics.IncRendered("success", total)
	if w.cancelled(ctx, job.ID) {
		return errCancelled
	}

	// the API records a cancel in the job store before the queue flag is seen
	latest, err := w.jobs.Get(ctx, job.ID)
	if err != nil {
		return &StorageError{Op: "get", Key: job.ID, Err: err}
	}
	if latest.Status == store.StateCancelled {
		return errCancelled
	}

	end := time.Now()
	job.Status = store.StateSuccess
	job.Progress = 100
	job.Message = fmt.Sprintf("rendered %d pages", total)
	job.Pages = total
	job.Artifacts = artifacts
	job.End = &end
	if err := w.jobs.Save(ctx, job); err != nil {
		return &StorageError{Op: "save", Key: job.ID, Err: err}
	}
	log.Info().Str("job_id", job.ID).Int("pages", total).Dur("duration", end.Sub(now)).Msg("render job completed")
	return nil
}

func (w *Worker) cancelled(ctx context.Context, jobID string) bool {
	c, err := w.q.IsCancelled(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("cancel check failed")
		return false
	}
	return c
}

func (w *Worker) finish(ctx context.Context, jobID string, state store.State, message string) {
	w.update(ctx, jobID, func(j *store.Job) {
		end := time.Now()
		j.Status = state
		j.Message = message
		j.End = &end
	})
}

func (w *Worker) update(ctx context.Context, jobID string, fn func(*store.Job)) {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("job record unavailable for status update")
		return
	}
	// a cancellation recorded by the API wins over late worker updates
	if job.Status == store.StateCancelled {
		return
	}
	fn(&job)
	if err := w.jobs.Save(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("status update failed")
	}
}
