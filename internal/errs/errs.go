// Package errs holds the error taxonomy shared by the record store, the
// snapshot manager and the forensics engine. Callers match with errors.Is;
// producers wrap with fmt.Errorf("...: %w", errs.ErrX).
package errs

import "errors"

var (
	// ErrInvalidFeatureVector is returned when a vector has the wrong
	// dimensionality or a component outside [0,1].
	ErrInvalidFeatureVector = errors.New("invalid feature vector")

	// ErrInvalidCoordinates is returned when a coordinate falls outside the
	// domain of its shape.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	ErrRecordNotFound   = errors.New("record not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrCompression wraps failures of the compression collaborator.
	ErrCompression = errors.New("compression failed")

	// ErrStorageIO wraps filesystem and database failures.
	ErrStorageIO = errors.New("storage i/o error")
)
