package services

import "errors"

// Sentinel errors returned by the run trigger operations so the handler
// layer can map rejections to the right HTTP status.
var (
	// ErrRunConflict rejects a start while a run of the same type is
	// already in flight, or an adopted run row has already finished.
	ErrRunConflict = errors.New("run conflict")

	// ErrInvalidRequest rejects malformed trigger parameters.
	ErrInvalidRequest = errors.New("invalid request")
)
