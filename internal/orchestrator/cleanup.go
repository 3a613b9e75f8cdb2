package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/storage"
)

// Sweeper deletes rendered artifacts and uploads past their retention period.
type Sweeper struct {
	storage  storage.Store
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewSweeper returns a sweeper that removes objects older than ttl every interval.
func NewSweeper(st storage.Store, ttl, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{storage: st, ttl: ttl, interval: interval, now: time.Now}
}

// Run sweeps until ctx is cancelled. A non-positive ttl disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.ttl <= 0 {
		log.Info().Msg("artifact retention disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("ttl", s.ttl).Dur("interval", s.interval).Msg("started artifact sweeper")
	for {
		s.SweepOnce(ctx)
		CleanupTemps(s.interval * 2)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single pass and returns how many objects were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.storage.Sweep(ctx, s.now().Add(-s.ttl))
	if err != nil {
		log.Warn().Err(err).Str("storage", s.storage.Scheme()).Msg("retention sweep failed")
	}
	if n > 0 {
		metrics.AddRetentionDeleted(n)
	}
	return n
}

// CleanupTemps removes office conversion work directories older than maxAge
// that a killed process left behind in the temp dir.
func CleanupTemps(maxAge time.Duration) {
	dir := os.TempDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	now := time.Now()
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "pdftools-office-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			_ = os.RemoveAll(filepath.Join(dir, e.Name()))
		}
	}
}
