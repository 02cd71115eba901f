// Package domain holds the error kinds and value types shared by the
// flowsheet and REMS domain packages.
package domain

import "errors"

var (
	// ErrInvalidInput is returned for out-of-range or malformed submissions.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOutOfOrderCompletion is returned when a workflow step other than the
	// current one is completed.
	ErrOutOfOrderCompletion = errors.New("out of order step completion")

	// ErrWorkflowComplete is returned when every workflow step is already completed.
	ErrWorkflowComplete = errors.New("workflow already complete")

	// ErrStorageUnavailable is returned when the record store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
