package dispatcher

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/store"
)

// isTransientError checks if a failed task is worth another attempt
func isTransientError(err error) bool {
	if err == nil || isFatalError(err) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Storage hiccups (S3 throttling, dropped connections)
	var stErr *StorageError
	if errors.As(err, &stErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "eof")
}

// isFatalError checks if error is fatal and should not be retried
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return true
	}

	// the source upload or the job record is gone
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, store.ErrNotFound)
}
