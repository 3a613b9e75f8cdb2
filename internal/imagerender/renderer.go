package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Format is the image encoding of rendered pages.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// Options controls rasterisation.
type Options struct {
	DPI     int
	Format  Format
	Color   ColorMode
	Quality int // JPEG only
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = 150
	}
	if o.Format != FormatJPEG {
		o.Format = FormatPNG
	}
	if o.Color != ColorGray {
		o.Color = ColorRGB
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 85
	}
	return o
}

// Extension returns the file extension for the format, without the dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "png"
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Page is one rendered page.
type Page struct {
	Number int // 1-based
	Name   string
	Data   []byte
	Width  int
	Height int
}

// PageName is the artifact name of page n, e.g. "page-3.png".
func PageName(n int, f Format) string {
	return fmt.Sprintf("page-%d.%s", n, f.Extension())
}

// RenderPages renders every page of pdf in order.
func RenderPages(pdf []byte, opts Options) ([]Page, error) {
	var pages []Page
	_, err := RenderEach(pdf, opts, func(p Page) error {
		pages = append(pages, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// RenderEach renders pages one at a time and hands each to fn, stopping at the
// first error fn returns. It returns the document's page count.
func RenderEach(pdf []byte, opts Options, fn func(Page) error) (int, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	opts = opts.withDefaults()
	n := doc.NumPage()
	for i := 1; i <= n; i++ {
		p, err := renderPage(doc, i, opts)
		if err != nil {
			return n, err
		}
		if err := fn(p); err != nil {
			return n, err
		}
	}
	return n, nil
}

// RenderPage renders the 1-based page pageNum.
func RenderPage(pdf []byte, pageNum int, opts Options) (Page, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return Page{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if pageNum < 1 || pageNum > doc.NumPage() {
		return Page{}, fmt.Errorf("page %d out of range 1-%d", pageNum, doc.NumPage())
	}
	return renderPage(doc, pageNum, opts.withDefaults())
}

// CountPages returns the number of pages go-fitz sees in pdf.
func CountPages(pdf []byte) (int, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

func renderPage(doc *fitz.Document, pageNum int, opts Options) (Page, error) {
	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(pageNum-1, float64(opts.DPI))
	if err != nil {
		return Page{}, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}

	bounds := img.Bounds()
	var final image.Image = img
	if opts.Color == ColorGray {
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, image.Point{}, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	switch opts.Format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, final, &jpeg.Options{Quality: opts.Quality})
	default:
		err = png.Encode(&buf, final)
	}
	if err != nil {
		return Page{}, fmt.Errorf("failed to encode page %d: %w", pageNum, err)
	}

	log.Debug().
		Int("page", pageNum).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Str("color", string(opts.Color)).
		Str("format", string(opts.Format)).
		Int("bytes", buf.Len()).
		Msg("rendered page")

	return Page{
		Number: pageNum,
		Name:   PageName(pageNum, opts.Format),
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
