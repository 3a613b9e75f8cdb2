package store

import (
	"context"
	"sync"
	"time"

	"github.com/local/pdftools/internal/export"
)

type memoryEntry struct {
	job     Job
	expires time.Time
}

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory creates a Memory store whose records live for ttl after their
// last save. A zero ttl keeps records forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{jobs: map[string]memoryEntry{}, ttl: ttl, now: time.Now}
}

func (m *Memory) Save(_ context.Context, job Job) error {
	job.Artifacts = append([]export.Artifact(nil), job.Artifacts...)
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{job: job}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.jobs[job.ID] = e
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.jobs, id)
		return Job{}, ErrNotFound
	}
	job := e.job
	job.Artifacts = append([]export.Artifact(nil), job.Artifacts...)
	return job, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *Memory) Close() error { return nil }
