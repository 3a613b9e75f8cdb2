// Package storage keeps uploaded sources and generated page artifacts.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned for keys or URLs that hold no object.
var ErrNotFound = errors.New("object not found")

// ErrForeignURL is returned when a URL does not belong to the store.
var ErrForeignURL = errors.New("url does not belong to this store")

// Store is an object store addressed by slash-separated keys. Put returns an
// internal URL that Fetch of the same store resolves; such URLs are never
// shown to clients.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Sweep removes objects last modified before cutoff.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	// Scheme is the URL scheme of URLs returned by Put.
	Scheme() string
}

// JobPrefix is the key prefix holding everything that belongs to a job.
func JobPrefix(jobID string) string { return "jobs/" + jobID + "/" }

// JobKey builds the key of one object of a job.
func JobKey(jobID, name string) string { return JobPrefix(jobID) + cleanName(name) }

// cleanName keeps object names flat and free of traversal segments.
func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "file"
	}
	return name
}
