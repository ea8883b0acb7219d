package climate

import "errors"

var (
	// ErrConnection is returned when the remote service cannot be reached
	// or the credential is refused.
	ErrConnection = errors.New("climate data service unavailable")

	// ErrRemoteRejection is returned when the remote service rejects the
	// dataset, variable, date or location combination.
	ErrRemoteRejection = errors.New("climate data service rejected request")

	// ErrInputShape is returned when a series has no usable valid_time axis.
	ErrInputShape = errors.New("series has no usable valid_time axis")

	// ErrInvalidParams is returned for retrievals missing a variable or dates.
	ErrInvalidParams = errors.New("invalid retrieval parameters")
)
