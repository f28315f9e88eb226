package mmingest

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("mmingest: invalid configuration")

	// ErrNoInputs is returned when an ingest run is given no files.
	ErrNoInputs = errors.New("mmingest: no input files")

	// ErrIndexDisabled is returned when an index operation is requested
	// from an Engine opened without a record index.
	ErrIndexDisabled = errors.New("mmingest: record index disabled")
)
