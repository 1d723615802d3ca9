package tools

import "errors"

var (
	// ErrToolNotFound is returned when Execute is called with an unregistered name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool is registered with no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate name.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when a required schema argument is absent.
	ErrMissingRequiredArg = errors.New("missing required argument")
)
