package errors

import "errors"

var (
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownStage is returned when a trigger names a stage nobody registered.
	ErrUnknownStage = errors.New("unknown stage")
)
