package docstore

import "errors"

var (
	// ErrNotFound is returned by reads of missing documents and by Update
	// against a missing document.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrConflict is returned by a commit whose read set went stale. Plain
	// transactions retry on it automatically; it only escapes when retries
	// are exhausted.
	ErrConflict = errors.New("docstore: transaction conflict")

	// ErrClosed is returned by operations against a closed store.
	ErrClosed = errors.New("docstore: store closed")
)
