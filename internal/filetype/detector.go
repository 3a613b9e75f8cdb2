package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind groups detected types by what the conversion tools can do with them.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindImage       Kind = "image"
	KindText        Kind = "text"
	KindOffice      Kind = "office"
	KindUnsupported Kind = "unsupported"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// Supported reports whether any tool accepts the file.
func (i *FileTypeInfo) Supported() bool { return i.Kind != KindUnsupported }

// EmbeddableImage reports whether the image can be placed in a PDF as-is.
func (i *FileTypeInfo) EmbeddableImage() bool {
	return i.MIMEType == "image/jpeg" || i.MIMEType == "image/png"
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type of data using magic bytes. The file
// name is only consulted to tell ZIP and OLE based office formats apart.
func (d *Detector) Detect(data []byte, fileName string) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	mimeType := mtype.String()
	extension := mtype.Extension()
	// mimetype appends parameters such as "; charset=utf-8"
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	ext := strings.ToLower(filepath.Ext(fileName))

	switch mimeType {
	case "application/zip", "application/x-zip-compressed":
		if m, e, ok := zipOffice(ext); ok {
			log.Debug().Str("original", mimeType).Str("override", m).Msg("overriding ZIP detection based on extension")
			mimeType, extension = m, e
		}
	case "application/x-ole-storage", "application/x-cfb":
		if m, e, ok := oleOffice(ext); ok {
			log.Debug().Str("original", mimeType).Str("override", m).Msg("overriding OLE detection based on extension")
			mimeType, extension = m, e
		}
	}

	info := &FileTypeInfo{MIMEType: mimeType, Extension: extension}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("kind", string(info.Kind)).Str("file", fileName).Msg("detected file type")
	return info
}

// ContentType returns the MIME type to serve data with.
func (d *Detector) ContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

func zipOffice(ext string) (string, string, bool) {
	switch ext {
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document", ".docx", true
	case ".odt":
		return "application/vnd.oasis.opendocument.text", ".odt", true
	}
	return "", "", false
}

func oleOffice(ext string) (string, string, bool) {
	if ext == ".doc" {
		return "application/msword", ".doc", true
	}
	return "", "", false
}

// classify determines which tools can consume the file
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType

	switch {
	case mimeType == "application/pdf":
		info.Kind = KindPDF
		info.Description = "PDF document"

	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		info.Kind = KindOffice
		info.Description = "Microsoft Word document"

	case mimeType == "application/msword":
		info.Kind = KindOffice
		info.Description = "Microsoft Word document (legacy)"

	case mimeType == "application/vnd.oasis.opendocument.text":
		info.Kind = KindOffice
		info.Description = "OpenDocument text"

	case mimeType == "text/rtf", mimeType == "application/rtf":
		info.Kind = KindOffice
		info.Description = "Rich Text Format"

	case strings.HasPrefix(mimeType, "image/"):
		info.Kind = KindImage
		info.Description = "Image file"

	case strings.HasPrefix(mimeType, "text/"):
		info.Kind = KindText
		info.Description = "Plain text file"

	default:
		info.Kind = KindUnsupported
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}
