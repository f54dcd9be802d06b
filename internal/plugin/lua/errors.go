package lua

import "errors"

// Errors for Lua runtime operations.
var (
	// ErrRuntimeClosed is returned when operating on a closed runtime.
	ErrRuntimeClosed = errors.New("lua runtime is closed")

	// ErrNotAFunction is returned when calling a global that is absent or
	// not a function.
	ErrNotAFunction = errors.New("global is not a function")
)
