package converter

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFiles is returned when a request carries no files.
	ErrNoFiles = errors.New("no files provided")
	// ErrUnsupportedTool is returned for unknown or asynchronous tool IDs.
	ErrUnsupportedTool = errors.New("unsupported tool")
	// ErrNoPages is returned when a page range selects nothing.
	ErrNoPages = errors.New("no valid pages selected")
	// ErrPasswordRequired is returned by pdf-password without a password.
	ErrPasswordRequired = errors.New("password is required")
	// ErrOfficeUnavailable is returned when LibreOffice is not installed.
	ErrOfficeUnavailable = errors.New("document conversion is not available")
)

// InputError rejects one uploaded file.
type InputError struct {
	File   string
	Reason string
}

func (e *InputError) Error() string {
	if e.File == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}
