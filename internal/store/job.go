// Package store keeps job records: status, progress and the artifact manifest
// a finished render job produced.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/local/pdftools/internal/export"
)

// ErrNotFound is returned for unknown or expired jobs.
var ErrNotFound = errors.New("job not found")

// State is a job lifecycle state.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateCancelled
}

// Job is the record of one asynchronous conversion.
type Job struct {
	ID       string     `json:"job_id"`
	Tool     string     `json:"tool"`
	Status   State      `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message,omitempty"`
	FileName string     `json:"file_name,omitempty"`
	Created  time.Time  `json:"created_at"`
	Start    *time.Time `json:"start_time,omitempty"`
	End      *time.Time `json:"end_time,omitempty"`
	Pages    int        `json:"pages"`
	// SourceKey is the storage key of the uploaded input.
	SourceKey string `json:"-"`
	// Artifacts hold internal storage URLs in page order.
	Artifacts []export.Artifact `json:"-"`
}

// Manifest returns the job's artifacts as an export manifest.
func (j Job) Manifest() export.Manifest { return export.NewManifest(j.Artifacts) }

// Store persists job records. Records expire after the store's retention.
type Store interface {
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
