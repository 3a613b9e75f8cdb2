package dispatcher

import "fmt"

// RenderError means the source document itself could not be rasterised.
// Retrying will not help.
type RenderError struct {
	JobID string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render job %s: %v", e.JobID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// StorageError wraps a failed read or write against artifact storage.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
