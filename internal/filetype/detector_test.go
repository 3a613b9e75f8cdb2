package filetype_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/local/pdftools/internal/filetype"
	"github.com/m-mizutani/gt"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	d := filetype.New()

	tests := []struct {
		name     string
		data     []byte
		fileName string
		wantMIME string
		wantKind filetype.Kind
	}{
		{name: "pdf", data: []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n"), fileName: "a.pdf", wantMIME: "application/pdf", wantKind: filetype.KindPDF},
		{name: "png regardless of name", data: pngBytes(t), fileName: "photo.txt", wantMIME: "image/png", wantKind: filetype.KindImage},
		{name: "plain text", data: []byte("hello world\nsecond line\n"), fileName: "notes.txt", wantMIME: "text/plain", wantKind: filetype.KindText},
		{name: "unknown binary", data: []byte{0x00, 0x01, 0x02, 0x03, 0xfe, 0xff}, fileName: "blob.bin", wantMIME: "application/octet-stream", wantKind: filetype.KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := d.Detect(tt.data, tt.fileName)
			gt.Equal(t, info.MIMEType, tt.wantMIME)
			gt.Equal(t, info.Kind, tt.wantKind)
			gt.Equal(t, info.Supported(), tt.wantKind != filetype.KindUnsupported)
		})
	}
}

func TestEmbeddableImage(t *testing.T) {
	info := filetype.New().Detect(pngBytes(t), "p.png")
	gt.True(t, info.EmbeddableImage())

	gif := filetype.New().Detect([]byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"), "p.gif")
	gt.Equal(t, gif.Kind, filetype.KindImage)
	gt.False(t, gif.EmbeddableImage())
}
