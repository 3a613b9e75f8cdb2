package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/local/pdftools/internal/config"
	"github.com/local/pdftools/internal/converter"
	"github.com/local/pdftools/internal/export"
	"github.com/local/pdftools/internal/limiter"
	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/orchestrator"
	"github.com/local/pdftools/internal/statuscheck"
	"github.com/local/pdftools/internal/web"
)

func cmdServe(cfg *config.Config) *cli.Command {
	var addr string

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "Listen address (default :$PORT)",
				Destination: &addr,
			},
			&cli.BoolFlag{
				Name:  "no-dispatcher",
				Usage: "Do not run render workers in this process",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if addr == "" {
				addr = ":" + cfg.Server.Port
			}
			metrics.Init()

			rt, err := newRuntime(ctx, *cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			office := converter.NewLibreOffice(cfg.Worker.SofficePath, cfg.Worker.ConvertTimeout)
			if !office.Available() {
				log.Warn().Str("binary", cfg.Worker.SofficePath).Msg("LibreOffice not found; word-to-pdf disabled")
			}

			exporter := export.New(rt.fetcher)
			orch := orchestrator.New(orchestrator.Dependencies{
				Converter: converter.New(office),
				Limiter:   limiter.New(cfg.Worker.MaxInflightPerTool),
				Queue:     rt.queue,
				Jobs:      rt.jobs,
				Storage:   rt.storage,
				Exporter:  exporter,
				Status: statuscheck.New(statuscheck.Options{
					Queue:       rt.queue,
					QueueKind:   rt.queueKind,
					Storage:     rt.storagePing,
					StorageKind: rt.storageKind,
					Office:      office,
				}),
			},
				orchestrator.WithAddr(addr),
				orchestrator.WithPublicBaseURL(cfg.Server.PublicBaseURL),
				orchestrator.WithMaxUploadMB(cfg.Server.MaxUploadMB),
			)
			orch.MountWeb(web.New(rt.jobs, exporter, web.Options{
				ArtifactURL: orch.ArtifactURL,
				Username:    cfg.Server.WebUsername,
				Password:    cfg.Server.WebPassword,
			}))
			server := orchestrator.NewServer(orch)

			bgCtx, stopBackground := context.WithCancel(ctx)
			defer stopBackground()
			go orchestrator.NewSweeper(rt.storage, cfg.Retention.TTL, cfg.Retention.CleanupInterval).Run(bgCtx)
			go orchestrator.MonitorQueue(bgCtx, rt.queue, 15*time.Second)

			if cfg.Server.RunDispatcher && !c.Bool("no-dispatcher") {
				worker := rt.newWorker()
				worker.Start()
				defer stopWorker(worker, 30*time.Second)
			}

			go func() {
				log.Info().Str("addr", addr).Msg("HTTP server listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server error")
					stopBackground()
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			select {
			case <-bgCtx.Done():
				log.Info().Msg("context cancelled, shutting down")
			case sig := <-sigChan:
				log.Info().Str("signal", sig.String()).Msg("signal received, shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			log.Info().Msg("server shutdown complete")
			return nil
		},
	}
}
