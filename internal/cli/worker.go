package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/local/pdftools/internal/config"
	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/orchestrator"
)

func cmdWorker(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run render workers only; requires REDIS_URL",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Number of parallel renders (default WORKER_CONCURRENCY)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if cfg.Queue.RedisURL == "" {
				return errors.New("worker needs REDIS_URL; the in-memory queue is per process")
			}
			if n := c.Int("concurrency"); n > 0 {
				cfg.Worker.Concurrency = int(n)
			}
			metrics.Init()

			rt, err := newRuntime(ctx, *cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			worker := rt.newWorker()
			worker.Start()
			go orchestrator.MonitorQueue(ctx, rt.queue, 15*time.Second)
			log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("render workers running")

			<-ctx.Done()
			log.Info().Msg("shutting down render workers")
			stopWorker(worker, 30*time.Second)
			return nil
		},
	}
}
