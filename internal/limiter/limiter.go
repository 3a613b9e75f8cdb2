// Package limiter bounds concurrent conversions per tool.
package limiter

import (
	"strings"
	"sync"

	"github.com/local/pdftools/internal/metrics"
)

// Limiter hands out in-process slots keyed by tool ID.
type Limiter struct {
	maxInflight int
	mu          sync.Mutex
	sem         map[string]chan struct{}
}

// New creates a Limiter allowing maxInflight concurrent holders per key.
func New(maxInflight int) *Limiter {
	if maxInflight <= 0 {
		maxInflight = 2
	}
	return &Limiter{maxInflight: maxInflight, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve a slot for tool without waiting.
// Returns a release function and true if allowed; otherwise a no-op, false.
func (l *Limiter) Allow(tool string) (func(), bool) {
	key := strings.ToLower(tool)
	l.mu.Lock()
	ch, ok := l.sem[key]
	if !ok {
		ch = make(chan struct{}, l.maxInflight)
		l.sem[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, true
	default:
		metrics.IncLimiterRejection(key)
		return func() {}, false
	}
}

// Inflight returns the number of held slots for tool.
func (l *Limiter) Inflight(tool string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.sem[strings.ToLower(tool)]; ok {
		return len(ch)
	}
	return 0
}
