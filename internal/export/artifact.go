// Package export assembles downloadable bundles from generated page artifacts.
package export

import (
	"errors"
	"fmt"
	"mime"
)

// AllPages is the index that asks Download for every artifact.
const AllPages = -1

// AllPagesBundleName is the fixed name of a "download all" bundle.
const AllPagesBundleName = "pdf-images.zip"

// ErrEmptySelection means the requested selection resolved to no artifacts.
// Nothing is retrieved when it is returned.
var ErrEmptySelection = errors.New("no valid pages selected")

// ErrIndexOutOfRange is returned for a single-artifact download outside the manifest.
var ErrIndexOutOfRange = errors.New("artifact index out of range")

// Artifact is one generated page output. Its 1-based page number is its
// position in the Manifest plus one.
type Artifact struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Manifest is the ordered, immutable sequence of artifacts produced by one
// conversion. Its length is the page count ranges are resolved against.
type Manifest struct {
	items []Artifact
}

// NewManifest copies artifacts into a Manifest.
func NewManifest(artifacts []Artifact) Manifest {
	items := make([]Artifact, len(artifacts))
	copy(items, artifacts)
	return Manifest{items: items}
}

// Len is the number of artifacts, i.e. the page count.
func (m Manifest) Len() int { return len(m.items) }

// At returns the artifact at 0-based index i.
func (m Manifest) At(i int) (Artifact, bool) {
	if i < 0 || i >= len(m.items) {
		return Artifact{}, false
	}
	return m.items[i], true
}

// Artifacts returns a copy of the artifact list.
func (m Manifest) Artifacts() []Artifact {
	out := make([]Artifact, len(m.items))
	copy(out, m.items)
	return out
}

// FetchError reports the artifact whose retrieval aborted an export.
type FetchError struct {
	Index int
	Name  string
	URL   string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Bundle is a fully assembled export: a ZIP archive, or the raw artifact for
// a single-item download.
type Bundle struct {
	Name        string
	ContentType string
	Data        []byte
	// Entries lists the artifact names in the order they were added.
	Entries []string
}

// ContentDisposition formats a Content-Disposition header value for a
// download named name. disposition is "inline" or "attachment".
func ContentDisposition(disposition, name string) string {
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": name}); v != "" {
		return v
	}
	return disposition
}

// Archived reports whether the bundle is a ZIP archive.
func (b *Bundle) Archived() bool { return b.ContentType == zipContentType }
