package converter

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/goregular"
)

// Text page layout, in points.
const (
	a4Width        = 595.0
	a4Height       = 842.0
	textMargin     = 50.0
	textFontSize   = 12.0
	textLineHeight = textFontSize * 1.2
	textFontName   = "goregular"
)

// ImagesToPDF places each JPEG or PNG on its own page sized to the image, one
// point per pixel, in the order given.
func ImagesToPDF(images []Input) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoFiles
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{Unit: gopdf.UnitPT, PageSize: *gopdf.PageSizeA4})
	defer pdf.Close()

	for _, img := range images {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
		if err != nil {
			return nil, &InputError{File: img.Name, Reason: fmt.Sprintf("cannot decode image: %v", err)}
		}
		if cfg.Width < 1 || cfg.Height < 1 {
			return nil, &InputError{File: img.Name, Reason: fmt.Sprintf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)}
		}

		holder, err := gopdf.ImageHolderByBytes(img.Data)
		if err != nil {
			return nil, fmt.Errorf("image holder for %s: %w", img.Name, err)
		}

		rect := &gopdf.Rect{W: float64(cfg.Width), H: float64(cfg.Height)}
		pdf.AddPageWithOption(gopdf.PageOption{PageSize: rect})
		if err := pdf.ImageByHolder(holder, 0, 0, rect); err != nil {
			return nil, fmt.Errorf("draw %s: %w", img.Name, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// TextToPDF lays text out on A4 pages with a 50pt margin in 12pt Go Regular,
// wrapping at the text width and starting a new page when one fills up.
func TextToPDF(text string) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{Unit: gopdf.UnitPT, PageSize: gopdf.Rect{W: a4Width, H: a4Height}})
	defer pdf.Close()

	if err := pdf.AddTTFFontData(textFontName, goregular.TTF); err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	if err := pdf.SetFont(textFontName, "", textFontSize); err != nil {
		return nil, fmt.Errorf("set font: %w", err)
	}
	pdf.SetTextColor(0, 0, 0)

	lines, err := wrapText(pdf, text, a4Width-2*textMargin)
	if err != nil {
		return nil, err
	}

	pdf.AddPage()
	y := textMargin
	for _, line := range lines {
		if y+textLineHeight > a4Height-textMargin {
			pdf.AddPage()
			y = textMargin
		}
		if line != "" {
			pdf.SetXY(textMargin, y)
			if err := pdf.Cell(nil, line); err != nil {
				return nil, fmt.Errorf("draw text: %w", err)
			}
		}
		y += textLineHeight
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// wrapText splits text into lines no wider than width. Blank lines survive as
// empty strings.
func wrapText(pdf *gopdf.GoPdf, text string, width float64) ([]string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")
	text = strings.TrimPrefix(text, "\uFEFF")

	var out []string
	for _, para := range strings.Split(text, "\n") {
		if strings.TrimSpace(para) == "" {
			out = append(out, "")
			continue
		}
		wrapped, err := pdf.SplitTextWithWordWrap(para, width)
		if err != nil {
			return nil, fmt.Errorf("wrap text: %w", err)
		}
		out = append(out, wrapped...)
	}
	return out, nil
}
