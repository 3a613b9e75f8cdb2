package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/config"
	"github.com/local/pdftools/internal/dispatcher"
	"github.com/local/pdftools/internal/fetch"
	"github.com/local/pdftools/internal/imagerender"
	"github.com/local/pdftools/internal/queue"
	"github.com/local/pdftools/internal/statuscheck"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/store"
)

// runtime holds the backends shared by the commands.
type runtime struct {
	cfg config.Config

	storage     storage.Store
	storageKind string
	storagePing statuscheck.Pinger

	queue     queue.Queue
	queueKind string
	jobs      store.Store

	fetcher *fetch.Router
	closers []func()
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	if err := rt.openStorage(ctx); err != nil {
		return nil, err
	}
	if err := rt.openQueue(ctx); err != nil {
		rt.close()
		return nil, err
	}

	rt.fetcher = fetch.New(
		fetch.WithMaxBytes(int64(cfg.Fetch.MaxArtifactMB)<<20),
		fetch.WithSource(rt.storage, rt.storage.Scheme()),
		fetch.WithHTTP(fetch.HTTPOptions{
			Timeout:      cfg.Fetch.Timeout,
			RetryCount:   cfg.Fetch.Retries,
			RetryWait:    cfg.Fetch.RetryWait,
			RetryMaxWait: cfg.Fetch.RetryMaxWait,
			UserAgent:    cfg.Fetch.UserAgent,
		}),
	)
	rt.closers = append(rt.closers, rt.fetcher.Close)
	return rt, nil
}

func (rt *runtime) openStorage(ctx context.Context) error {
	sc := rt.cfg.Storage
	switch sc.Backend {
	case "s3":
		s3s, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:         sc.Bucket,
			Prefix:         sc.Prefix,
			Region:         sc.Region,
			Endpoint:       sc.Endpoint,
			ForcePathStyle: sc.ForcePathStyle,
			AccessKeyID:    sc.AccessKeyID,
			SecretKey:      sc.SecretKey,
		})
		if err != nil {
			return fmt.Errorf("init s3 storage: %w", err)
		}
		rt.storage, rt.storageKind = s3s, "s3"
		rt.storagePing = statuscheck.PingFunc(s3s.HeadBucket)
	case "local", "":
		ls, err := storage.NewLocalStore(sc.LocalDir)
		if err != nil {
			return err
		}
		rt.storage, rt.storageKind = ls, "local"
		rt.storagePing = statuscheck.PingFunc(func(context.Context) error {
			_, err := os.Stat(ls.Root())
			return err
		})
	default:
		return fmt.Errorf("unknown storage backend %q", sc.Backend)
	}

	if sc.EncryptionKey != "" {
		rt.storage = storage.NewEncrypted(rt.storage, sc.EncryptionKey)
		rt.storageKind += "+aes"
	}
	log.Info().Str("storage", rt.storageKind).Msg("artifact storage ready")
	return nil
}

func (rt *runtime) openQueue(ctx context.Context) error {
	qc := rt.cfg.Queue
	if qc.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set; using in-memory queue and job store")
		mq := queue.NewMemoryQueue(1024)
		rt.queue, rt.queueKind = mq, "memory"
		rt.jobs = store.NewMemory(rt.cfg.Retention.TTL)
		rt.closers = append(rt.closers, func() { _ = mq.Close() })
		return nil
	}

	rq, err := queue.NewRedisQueue(ctx, queue.RedisOptions{
		URL:          qc.RedisURL,
		Stream:       qc.Stream,
		Group:        qc.Group,
		PollInterval: qc.PollInterval,
		CancelTTL:    rt.cfg.Retention.TTL,
	})
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = rq.Close() })

	rs, err := store.NewRedis(ctx, qc.RedisURL, rt.cfg.Retention.TTL)
	if err != nil {
		return fmt.Errorf("connect job store: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = rs.Close() })

	rt.queue, rt.queueKind, rt.jobs = rq, "redis", rs
	return nil
}

// renderOptions maps the render section of the config.
func (rt *runtime) renderOptions() imagerender.Options {
	rc := rt.cfg.Render
	return imagerender.Options{
		DPI:     rc.DPI,
		Format:  imagerender.Format(rc.Format),
		Color:   imagerender.ColorMode(rc.Color),
		Quality: rc.JPEGQuality,
	}
}

func (rt *runtime) newWorker() *dispatcher.Worker {
	wc := rt.cfg.Worker
	return dispatcher.New(dispatcher.Config{
		Concurrency:   wc.Concurrency,
		RenderTimeout: wc.RenderTimeout,
		PollInterval:  rt.cfg.Queue.PollInterval,
		Render:        rt.renderOptions(),
	}, rt.queue, rt.jobs, rt.storage)
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// stopWorker drains in-flight renders for at most d.
func stopWorker(w *dispatcher.Worker, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("render workers did not stop in time")
	}
}
