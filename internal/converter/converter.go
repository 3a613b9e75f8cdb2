package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/filetype"
	"github.com/local/pdftools/internal/metrics"
)

const (
	pdfContentType = "application/pdf"
	zipContentType = "application/zip"
)

// Input is one uploaded file.
type Input struct {
	Name string
	Data []byte
}

// Options carries the optional form fields of a generate request.
type Options struct {
	// Pages is a range expression for pdf-split. Empty splits every page.
	Pages    string
	Password string
}

// Output is a finished conversion ready to be served.
type Output struct {
	Name        string
	ContentType string
	Data        []byte
}

// Converter runs the synchronous tools.
type Converter struct {
	detector *filetype.Detector
	office   *LibreOffice
}

// New creates a Converter. office may be nil, in which case word-to-pdf
// reports ErrOfficeUnavailable.
func New(office *LibreOffice) *Converter {
	return &Converter{detector: filetype.New(), office: office}
}

// Office returns the LibreOffice runner, or nil.
func (c *Converter) Office() *LibreOffice { return c.office }

// Generate runs the tool identified by toolID over files. Asynchronous tools
// such as pdf-to-image are rejected with ErrUnsupportedTool; they go through
// the job queue instead.
func (c *Converter) Generate(ctx context.Context, toolID string, files []Input, opts Options) (*Output, error) {
	tool, ok := Lookup(toolID)
	if !ok || tool.Async {
		return nil, ErrUnsupportedTool
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	start := time.Now()
	out, err := c.run(ctx, tool, files, opts)
	result := "success"
	if err != nil {
		result = "error"
		var inErr *InputError
		if errors.As(err, &inErr) {
			result = "rejected"
		}
		log.Warn().Err(err).Str("tool", tool.ID).Int("files", len(files)).Msg("conversion failed")
	} else {
		log.Info().Str("tool", tool.ID).Int("files", len(files)).Int("bytes", len(out.Data)).Dur("duration", time.Since(start)).Msg("conversion completed")
	}
	metrics.ObserveConversion(tool.ID, result, time.Since(start))
	return out, err
}

// CheckInputs verifies every file is something tool accepts.
func (c *Converter) CheckInputs(tool Tool, files []Input) error {
	for _, f := range files {
		info := c.detector.Detect(f.Data, f.Name)
		if !tool.accepts(info.Kind) {
			if tool.ID == ToolImageToPDF {
				return &InputError{File: f.Name, Reason: fmt.Sprintf("Unsupported image type: %s", info.MIMEType)}
			}
			return &InputError{File: f.Name, Reason: fmt.Sprintf("%s is not accepted by %s", info.Description, tool.Name)}
		}
		if tool.ID == ToolImageToPDF && !info.EmbeddableImage() {
			return &InputError{File: f.Name, Reason: fmt.Sprintf("Unsupported image type: %s", info.MIMEType)}
		}
	}
	return nil
}

func (c *Converter) run(ctx context.Context, tool Tool, files []Input, opts Options) (*Output, error) {
	if err := c.CheckInputs(tool, files); err != nil {
		return nil, err
	}

	pdfOut := func(data []byte, err error) (*Output, error) {
		if err != nil {
			return nil, err
		}
		return &Output{Name: tool.FileName(), ContentType: pdfContentType, Data: data}, nil
	}

	switch tool.ID {
	case ToolImageToPDF:
		return pdfOut(ImagesToPDF(files))
	case ToolTextToPDF:
		return pdfOut(TextToPDF(string(files[0].Data)))
	case ToolPDFMerge:
		return pdfOut(MergePDFs(files))
	case ToolPDFPassword:
		return pdfOut(Protect(files[0].Data, opts.Password))
	case ToolPDFSplit:
		if opts.Pages != "" {
			return pdfOut(ExtractPages(files[0].Data, opts.Pages))
		}
		return c.splitAll(tool, files[0].Data)
	case ToolWordToPDF:
		if c.office == nil {
			return nil, ErrOfficeUnavailable
		}
		return pdfOut(c.office.ConvertToPDF(ctx, files[0].Name, files[0].Data))
	}
	return nil, ErrUnsupportedTool
}

// splitAll bundles one PDF per page into a ZIP named after the tool.
func (c *Converter) splitAll(tool Tool, pdf []byte) (*Output, error) {
	pages, err := SplitPages(pdf)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	now := time.Now()
	for i, p := range pages {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     fmt.Sprintf("page-%d.pdf", i+1),
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return nil, fmt.Errorf("zip entry %d: %w", i+1, err)
		}
		if _, err := w.Write(p); err != nil {
			return nil, fmt.Errorf("zip entry %d: %w", i+1, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}

	name := tool.FileName()
	name = name[:len(name)-len(".pdf")] + ".zip"
	return &Output{Name: name, ContentType: zipContentType, Data: buf.Bytes()}, nil
}
