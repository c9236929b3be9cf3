package model

import "errors"

// Error kinds shared by every layer. Wrap with fmt.Errorf("...: %w") and test
// with errors.Is.
var (
	// ErrValidation marks rejected input: unknown label, malformed date, bad item.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrTransientIO marks a storage or network failure worth retrying later.
	ErrTransientIO = errors.New("transient io failure")
)
