package converter_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/local/pdftools/internal/converter"
)

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func threePagePDF(t *testing.T) []byte {
	t.Helper()
	pdf, err := converter.ImagesToPDF([]converter.Input{
		{Name: "a.png", Data: pngImage(t, 40, 30)},
		{Name: "b.png", Data: pngImage(t, 50, 20)},
		{Name: "c.png", Data: pngImage(t, 10, 10)},
	})
	gt.NoError(t, err)
	return pdf
}

func TestToolFileNames(t *testing.T) {
	cases := map[string]string{
		converter.ToolImageToPDF:  "image-to-pdf.pdf",
		converter.ToolWordToPDF:   "word-to-pdf.pdf",
		converter.ToolPDFMerge:    "pdf-merge.pdf",
		converter.ToolPDFSplit:    "pdf-split.pdf",
		converter.ToolPDFPassword: "add-password.pdf",
		converter.ToolPDFToImage:  "pdf-to-image.pdf",
		converter.ToolTextToPDF:   "text-to-pdf.pdf",
	}
	for id, want := range cases {
		tool, ok := converter.Lookup(id)
		gt.True(t, ok)
		gt.Equal(t, tool.FileName(), want)
	}
	gt.Equal(t, len(converter.Tools()), len(cases))

	_, ok := converter.Lookup("pdf-compress")
	gt.False(t, ok)
}

func TestImagesToPDF(t *testing.T) {
	pdf := threePagePDF(t)
	gt.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	n, err := converter.PageCount(pdf)
	gt.NoError(t, err)
	gt.Equal(t, n, 3)
}

func TestTextToPDFPaginates(t *testing.T) {
	short, err := converter.TextToPDF("hello\r\n\r\nworld\tagain")
	gt.NoError(t, err)
	n, err := converter.PageCount(short)
	gt.NoError(t, err)
	gt.Equal(t, n, 1)

	long, err := converter.TextToPDF(strings.Repeat("a line of text\n", 150))
	gt.NoError(t, err)
	n, err = converter.PageCount(long)
	gt.NoError(t, err)
	gt.Number(t, n).Greater(1)

	empty, err := converter.TextToPDF("")
	gt.NoError(t, err)
	n, err = converter.PageCount(empty)
	gt.NoError(t, err)
	gt.Equal(t, n, 1)
}

func TestMergeAndExtract(t *testing.T) {
	pdf := threePagePDF(t)

	merged, err := converter.MergePDFs([]converter.Input{{Name: "1.pdf", Data: pdf}, {Name: "2.pdf", Data: pdf}})
	gt.NoError(t, err)
	n, err := converter.PageCount(merged)
	gt.NoError(t, err)
	gt.Equal(t, n, 6)

	part, err := converter.ExtractPages(merged, "2, 5-6")
	gt.NoError(t, err)
	n, err = converter.PageCount(part)
	gt.NoError(t, err)
	gt.Equal(t, n, 3)

	_, err = converter.ExtractPages(merged, "9-12, x")
	gt.True(t, errors.Is(err, converter.ErrNoPages))
}

func TestSplitPages(t *testing.T) {
	pages, err := converter.SplitPages(threePagePDF(t))
	gt.NoError(t, err)
	gt.Equal(t, len(pages), 3)
	for _, p := range pages {
		n, err := converter.PageCount(p)
		gt.NoError(t, err)
		gt.Equal(t, n, 1)
	}
}

func TestProtect(t *testing.T) {
	pdf := threePagePDF(t)

	_, err := converter.Protect(pdf, "")
	gt.True(t, errors.Is(err, converter.ErrPasswordRequired))

	locked, err := converter.Protect(pdf, "s3cret")
	gt.NoError(t, err)
	gt.True(t, bytes.HasPrefix(locked, []byte("%PDF")))
	gt.True(t, bytes.Contains(locked, []byte("/Encrypt")))
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	c := converter.New(nil)

	t.Run("image-to-pdf", func(t *testing.T) {
		out, err := c.Generate(ctx, converter.ToolImageToPDF, []converter.Input{{Name: "x.png", Data: pngImage(t, 8, 8)}}, converter.Options{})
		gt.NoError(t, err)
		gt.Equal(t, out.Name, "image-to-pdf.pdf")
		gt.Equal(t, out.ContentType, "application/pdf")
	})

	t.Run("text-to-pdf", func(t *testing.T) {
		out, err := c.Generate(ctx, converter.ToolTextToPDF, []converter.Input{{Name: "notes.txt", Data: []byte("plain text\n")}}, converter.Options{})
		gt.NoError(t, err)
		gt.Equal(t, out.Name, "text-to-pdf.pdf")
	})

	t.Run("split without pages zips every page", func(t *testing.T) {
		out, err := c.Generate(ctx, converter.ToolPDFSplit, []converter.Input{{Name: "in.pdf", Data: threePagePDF(t)}}, converter.Options{})
		gt.NoError(t, err)
		gt.Equal(t, out.Name, "pdf-split.zip")
		gt.Equal(t, out.ContentType, "application/zip")
	})

	t.Run("split with pages", func(t *testing.T) {
		out, err := c.Generate(ctx, converter.ToolPDFSplit, []converter.Input{{Name: "in.pdf", Data: threePagePDF(t)}}, converter.Options{Pages: "1-2"})
		gt.NoError(t, err)
		n, err := converter.PageCount(out.Data)
		gt.NoError(t, err)
		gt.Equal(t, n, 2)
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := c.Generate(ctx, "pdf-compress", []converter.Input{{Name: "a", Data: []byte("a")}}, converter.Options{})
		gt.True(t, errors.Is(err, converter.ErrUnsupportedTool))
	})

	t.Run("async tool is not generated inline", func(t *testing.T) {
		_, err := c.Generate(ctx, converter.ToolPDFToImage, []converter.Input{{Name: "a.pdf", Data: threePagePDF(t)}}, converter.Options{})
		gt.True(t, errors.Is(err, converter.ErrUnsupportedTool))
	})

	t.Run("no files", func(t *testing.T) {
		_, err := c.Generate(ctx, converter.ToolPDFMerge, nil, converter.Options{})
		gt.True(t, errors.Is(err, converter.ErrNoFiles))
	})

	t.Run("gif is rejected by name", func(t *testing.T) {
		var buf bytes.Buffer
		gt.NoError(t, gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White}), nil))
		_, err := c.Generate(ctx, converter.ToolImageToPDF, []converter.Input{{Name: "anim.gif", Data: buf.Bytes()}}, converter.Options{})
		var inErr *converter.InputError
		gt.True(t, errors.As(err, &inErr))
		gt.String(t, inErr.Error()).Contains("Unsupported image type: image/gif")
	})

	t.Run("merge rejects non pdf", func(t *testing.T) {
		_, err := c.Generate(ctx, converter.ToolPDFMerge, []converter.Input{{Name: "x.png", Data: pngImage(t, 4, 4)}}, converter.Options{})
		var inErr *converter.InputError
		gt.True(t, errors.As(err, &inErr))
	})

	t.Run("word without office", func(t *testing.T) {
		doc := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 512)...)
		_, err := c.Generate(ctx, converter.ToolWordToPDF, []converter.Input{{Name: "letter.doc", Data: doc}}, converter.Options{})
		gt.Error(t, err)
	})
}

func TestLibreOfficeMissing(t *testing.T) {
	lo := converter.NewLibreOffice("definitely-not-soffice", 0)
	gt.False(t, lo.Available())

	_, err := lo.ConvertToPDF(context.Background(), "a.docx", []byte("x"))
	gt.True(t, errors.Is(err, converter.ErrOfficeUnavailable))

	_, err = lo.Version(context.Background())
	gt.True(t, errors.Is(err, converter.ErrOfficeUnavailable))
}
