package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/queue"
)

// MonitorQueue publishes the render queue depth until ctx is cancelled.
func MonitorQueue(ctx context.Context, q queue.Queue, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last int64 = -1
	for {
		depth, err := q.Depth(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("failed to read queue depth")
		} else {
			metrics.SetQueueDepth("pending", depth)
			if depth != last {
				log.Debug().Int64("depth", depth).Msg("queue depth")
				last = depth
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
