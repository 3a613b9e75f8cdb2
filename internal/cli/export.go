package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/local/pdftools/internal/config"
	"github.com/local/pdftools/internal/export"
	"github.com/local/pdftools/internal/fetch"
	"github.com/local/pdftools/internal/pagerange"
)

func cmdExport(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Bundle page images of a finished job or a manifest file into a ZIP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "job", Usage: "Job ID in the configured job store"},
			&cli.StringFlag{Name: "manifest", Usage: `JSON file holding [{"url":..,"name":..}, ...]`},
			&cli.StringFlag{Name: "range", Aliases: []string{"r"}, Usage: `Pages to export, e.g. "1, 3-5"`},
			&cli.BoolFlag{Name: "all", Usage: "Export every page"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output directory", Value: "."},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.String("job") == "" && c.String("manifest") == "" {
				return errors.New("one of --job or --manifest is required")
			}
			if !c.Bool("all") && c.String("range") == "" {
				return errors.New("one of --range or --all is required")
			}

			m, fetcher, cleanup, err := loadManifest(ctx, *cfg, c.String("job"), c.String("manifest"))
			if err != nil {
				return err
			}
			defer cleanup()

			exp := export.New(fetcher)
			var b *export.Bundle
			if c.Bool("all") {
				b, err = exp.ExportAll(ctx, m)
			} else {
				expr := c.String("range")
				if _, ignored := pagerange.ParseDetailed(expr, m.Len()); len(ignored) > 0 {
					log.Warn().Strs("ignored", ignored).Int("pages", m.Len()).Msg("some range tokens select nothing")
				}
				b, err = exp.ExportRange(ctx, m, expr)
			}
			if errors.Is(err, export.ErrEmptySelection) {
				return fmt.Errorf("%w (document has %d pages)", err, m.Len())
			}
			if err != nil {
				return err
			}

			if err := os.MkdirAll(c.String("out"), 0o755); err != nil {
				return err
			}
			path := filepath.Join(c.String("out"), filepath.Base(b.Name))
			if err := os.WriteFile(path, b.Data, 0o644); err != nil {
				return fmt.Errorf("write bundle: %w", err)
			}
			fmt.Fprintf(c.Root().Writer, "%s (%d pages, %d bytes)\n", path, len(b.Entries), len(b.Data))
			return nil
		},
	}
}

// loadManifest reads artifacts from the job store or from a manifest file.
// Manifest files may reference local paths, which are read as file URLs.
func loadManifest(ctx context.Context, cfg config.Config, jobID, manifestPath string) (export.Manifest, export.Fetcher, func(), error) {
	if jobID != "" {
		rt, err := newRuntime(ctx, cfg)
		if err != nil {
			return export.Manifest{}, nil, nil, err
		}
		job, err := rt.jobs.Get(ctx, jobID)
		if err != nil {
			rt.close()
			return export.Manifest{}, nil, nil, fmt.Errorf("load job %s: %w", jobID, err)
		}
		return job.Manifest(), rt.fetcher, rt.close, nil
	}

	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return export.Manifest{}, nil, nil, err
	}
	var artifacts []export.Artifact
	if err := json.Unmarshal(raw, &artifacts); err != nil {
		return export.Manifest{}, nil, nil, fmt.Errorf("parse manifest: %w", err)
	}

	base := filepath.Dir(manifestPath)
	router := fetch.New(
		fetch.WithMaxBytes(int64(cfg.Fetch.MaxArtifactMB)<<20),
		fetch.WithSource(fetch.SourceFunc(func(_ context.Context, rawURL string) ([]byte, error) {
			return readLocal(base, rawURL)
		}), "file", ""),
		fetch.WithHTTP(fetch.HTTPOptions{
			Timeout:      cfg.Fetch.Timeout,
			RetryCount:   cfg.Fetch.Retries,
			RetryWait:    cfg.Fetch.RetryWait,
			RetryMaxWait: cfg.Fetch.RetryMaxWait,
			UserAgent:    cfg.Fetch.UserAgent,
		}),
	)
	return export.NewManifest(artifacts), router, router.Close, nil
}

// readLocal resolves file URLs and bare paths, relative ones against base.
func readLocal(base, rawURL string) ([]byte, error) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		p = u.Path
	}
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return os.ReadFile(p)
}
