package converter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/pdftools/internal/pagerange"
)

// passwordKeyLength is the AES key length, in bits, used by Protect.
const passwordKeyLength = 256

func pdfConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages of a PDF.
func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), pdfConf())
	if err != nil {
		return 0, wrapPDFError("page count", err)
	}
	return n, nil
}

// MergePDFs concatenates documents in the order given.
func MergePDFs(docs []Input) ([]byte, error) {
	if len(docs) == 0 {
		return nil, ErrNoFiles
	}
	readers := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		readers[i] = bytes.NewReader(d.Data)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, pdfConf()); err != nil {
		return nil, wrapPDFError("merge", err)
	}
	return out.Bytes(), nil
}

// ExtractPages keeps the pages selected by expr, in document order.
func ExtractPages(pdf []byte, expr string) ([]byte, error) {
	n, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	sel := pagerange.Parse(expr, n)
	if sel.Empty() {
		return nil, ErrNoPages
	}
	return trim(pdf, strings.Split(sel.String(), ","))
}

// SplitPages returns one single-page PDF per page.
func SplitPages(pdf []byte) ([][]byte, error) {
	n, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	pages := make([][]byte, 0, n)
	for i := 1; i <= n; i++ {
		p, err := trim(pdf, []string{strconv.Itoa(i)})
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func trim(pdf []byte, selection []string) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(pdf), &out, selection, pdfConf()); err != nil {
		return nil, wrapPDFError("trim", err)
	}
	return out.Bytes(), nil
}

// Protect encrypts a PDF with AES-256. The password is both the user and the
// owner password.
func Protect(pdf []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrPasswordRequired
	}
	conf := model.NewAESConfiguration(password, password, passwordKeyLength)
	conf.ValidationMode = model.ValidationRelaxed
	var out bytes.Buffer
	if err := api.Encrypt(bytes.NewReader(pdf), &out, conf); err != nil {
		return nil, wrapPDFError("encrypt", err)
	}
	return out.Bytes(), nil
}

// wrapPDFError turns password failures into an InputError so the caller can
// tell the user the upload itself is the problem.
func wrapPDFError(op string, err error) error {
	if errors.Is(err, pdfcpu.ErrWrongPassword) {
		return &InputError{Reason: "PDF is password protected"}
	}
	return fmt.Errorf("pdf %s: %w", op, err)
}
