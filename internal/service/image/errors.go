package image

import (
	"errors"
	"fmt"

	"github.com/aliskhannn/image-storage/internal/processor"
)

var (
	// ErrProcess aliases processor.ErrProcess so callers need one import.
	ErrProcess = processor.ErrProcess

	ErrStore     = errors.New("object store operation failed")
	ErrMetadata  = errors.New("metadata operation failed")
	ErrNotFound  = errors.New("image not found")
	ErrMismatch  = errors.New("image belongs to another domain")
	ErrTransport = errors.New("failed to resolve image url")

	// ErrCompensationFailed means an object was stored, its record was not,
	// and removing the object failed too. Manual cleanup is required.
	ErrCompensationFailed = errors.New("compensating delete failed, manual cleanup required")
)

// OrphanError is returned when an upload left an object behind that no
// record references. It matches ErrCompensationFailed and unwraps to the
// failed compensating delete only: it never matches ErrMetadata.
type OrphanError struct {
	Container string
	Key       string
	Cause     error // the metadata failure that triggered compensation
	UndoErr   error // the failed compensating delete
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("upload: %v: object %s/%s: %v (insert: %v)",
		ErrCompensationFailed, e.Container, e.Key, e.UndoErr, e.Cause)
}

func (e *OrphanError) Unwrap() error { return e.UndoErr }

// Is reports ErrCompensationFailed as a match.
func (e *OrphanError) Is(target error) bool { return target == ErrCompensationFailed }
