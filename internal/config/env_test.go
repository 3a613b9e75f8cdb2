package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/local/pdftools/internal/config"
	"github.com/m-mizutani/gt"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "REDIS_URL", "RETENTION", "RENDER_DPI", "RENDER_FORMAT", "STORAGE_BACKEND"} {
		t.Setenv(k, "")
	}

	cfg := config.FromEnv()
	gt.Equal(t, cfg.Server.Port, "8080")
	gt.Equal(t, cfg.Queue.RedisURL, "")
	gt.Equal(t, cfg.Retention.TTL, time.Hour)
	gt.Equal(t, cfg.Render.DPI, 150)
	gt.Equal(t, cfg.Render.Format, "png")
	gt.Equal(t, cfg.Storage.Backend, "local")
	gt.True(t, cfg.Server.RunDispatcher)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RETENTION", "30m")
	t.Setenv("RENDER_DPI", "not-a-number")
	t.Setenv("RENDER_FORMAT", "JPEG")
	t.Setenv("RUN_DISPATCHER", "off")
	t.Setenv("PUBLIC_BASE_URL", "https://pdf.example.com/")
	t.Setenv("AXIOM_DATASET", "prod")

	cfg := config.FromEnv()
	gt.Equal(t, cfg.Server.Port, "9090")
	gt.Equal(t, cfg.Retention.TTL, 30*time.Minute)
	gt.Equal(t, cfg.Render.DPI, 150)
	gt.Equal(t, cfg.Render.Format, "jpeg")
	gt.False(t, cfg.Server.RunDispatcher)
	gt.Equal(t, cfg.Server.PublicBaseURL, "https://pdf.example.com")
	gt.Equal(t, cfg.Axiom.Dataset, "prod_pdftools")
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing optional file is ignored", func(t *testing.T) {
		gt.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "nope.env"), false))
	})

	t.Run("missing required file fails", func(t *testing.T) {
		gt.Error(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "nope.env"), true))
	})

	t.Run("values are loaded without overriding", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "test.env")
		gt.NoError(t, os.WriteFile(p, []byte("PDFTOOLS_TEST_A=from-file\nPDFTOOLS_TEST_B=from-file\n"), 0o600))
		t.Setenv("PDFTOOLS_TEST_B", "from-env")
		t.Cleanup(func() { os.Unsetenv("PDFTOOLS_TEST_A") })

		gt.NoError(t, config.LoadDotEnv(p, true))
		gt.Equal(t, os.Getenv("PDFTOOLS_TEST_A"), "from-file")
		gt.Equal(t, os.Getenv("PDFTOOLS_TEST_B"), "from-env")
	})
}
