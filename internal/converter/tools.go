package converter

import (
	"strings"

	"github.com/local/pdftools/internal/filetype"
)

// Tool identifiers accepted by the generate endpoint.
const (
	ToolImageToPDF  = "image-to-pdf"
	ToolWordToPDF   = "word-to-pdf"
	ToolPDFMerge    = "pdf-merge"
	ToolPDFSplit    = "pdf-split"
	ToolPDFPassword = "pdf-password"
	ToolPDFToImage  = "pdf-to-image"
	ToolTextToPDF   = "text-to-pdf"
)

// Tool describes one conversion offered on the tools page.
type Tool struct {
	ID          string
	Name        string
	Description string
	Accepts     []filetype.Kind
	// Async tools answer with a job instead of a file.
	Async bool
}

var tools = []Tool{
	{ID: ToolImageToPDF, Name: "Image to PDF", Description: "Convert JPG, PNG, and other images to PDF", Accepts: []filetype.Kind{filetype.KindImage}},
	{ID: ToolWordToPDF, Name: "Word to PDF", Description: "Convert Word documents to PDF", Accepts: []filetype.Kind{filetype.KindOffice}},
	{ID: ToolPDFMerge, Name: "PDF Merge", Description: "Combine multiple PDFs into one", Accepts: []filetype.Kind{filetype.KindPDF}},
	{ID: ToolPDFSplit, Name: "PDF Split", Description: "Split PDF into multiple files", Accepts: []filetype.Kind{filetype.KindPDF}},
	{ID: ToolPDFPassword, Name: "Add Password", Description: "Protect PDF with password", Accepts: []filetype.Kind{filetype.KindPDF}},
	{ID: ToolPDFToImage, Name: "PDF to Image", Description: "Convert PDF pages to images", Accepts: []filetype.Kind{filetype.KindPDF}, Async: true},
	{ID: ToolTextToPDF, Name: "Text to PDF", Description: "Convert text files to PDF", Accepts: []filetype.Kind{filetype.KindText}},
}

// Tools lists every tool in display order.
func Tools() []Tool {
	out := make([]Tool, len(tools))
	copy(out, tools)
	return out
}

// Lookup finds a tool by ID.
func Lookup(id string) (Tool, bool) {
	for _, t := range tools {
		if t.ID == id {
			return t, true
		}
	}
	return Tool{}, false
}

// FileName is the download name for the tool's PDF output, e.g. "pdf-merge.pdf".
func (t Tool) FileName() string {
	return strings.ToLower(strings.Join(strings.Fields(t.Name), "-")) + ".pdf"
}

func (t Tool) accepts(k filetype.Kind) bool {
	for _, a := range t.Accepts {
		if a == k {
			return true
		}
	}
	return false
}
