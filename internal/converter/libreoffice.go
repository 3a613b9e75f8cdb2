package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LibreOffice converts office documents to PDF by running soffice headless,
// one process per document with its own throwaway profile.
type LibreOffice struct {
	binary  string
	timeout time.Duration
}

// NewLibreOffice creates a converter for the soffice binary at path (or on PATH).
func NewLibreOffice(binary string, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = "soffice"
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &LibreOffice{binary: binary, timeout: timeout}
}

// Available reports whether the soffice binary can be found.
func (l *LibreOffice) Available() bool {
	_, err := exec.LookPath(l.binary)
	return err == nil
}

// Version returns the first line of `soffice --version`.
func (l *LibreOffice) Version(ctx context.Context) (string, error) {
	if !l.Available() {
		return "", ErrOfficeUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, l.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("soffice --version: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}

// ConvertToPDF converts one document. name supplies the extension soffice
// uses to pick an import filter.
func (l *LibreOffice) ConvertToPDF(ctx context.Context, name string, data []byte) ([]byte, error) {
	if !l.Available() {
		return nil, ErrOfficeUnavailable
	}
	if len(data) == 0 {
		return nil, &InputError{File: name, Reason: "file is empty"}
	}
	start := time.Now()

	workDir, err := os.MkdirTemp("", "pdftools-office-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	profileDir := filepath.Join(workDir, "profile-"+uuid.NewString())
	outDir := filepath.Join(workDir, "out")
	for _, d := range []string{profileDir, outDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".docx"
	}
	inputPath := filepath.Join(workDir, "input"+ext)
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.binary,
		"-env:UserInstallation=file://"+filepath.ToSlash(profileDir),
		"--headless",
		"--nologo",
		"--nolockcheck",
		"--norestore",
		"--convert-to", "pdf",
		"--outdir", outDir,
		inputPath,
	)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	output, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("conversion timeout after %v", l.timeout)
		}
		return nil, ctx.Err()
	}
	if err != nil {
		if isPasswordFailure(output) {
			return nil, &InputError{File: name, Reason: "document is password protected"}
		}
		return nil, fmt.Errorf("soffice: %w: %s", err, strings.TrimSpace(string(output)))
	}

	pdf, err := os.ReadFile(filepath.Join(outDir, "input.pdf"))
	if err != nil {
		if isPasswordFailure(output) {
			return nil, &InputError{File: name, Reason: "document is password protected"}
		}
		return nil, fmt.Errorf("output file not created: %w", err)
	}

	log.Info().Str("file", name).Int("bytes", len(pdf)).Dur("duration", time.Since(start)).Msg("office conversion successful")
	return pdf, nil
}

func isPasswordFailure(output []byte) bool {
	s := strings.ToLower(string(output))
	return strings.Contains(s, "password") || strings.Contains(s, "encrypted")
}
