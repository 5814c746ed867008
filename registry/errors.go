package registry

import "errors"

var (
	// ErrNotFound is returned when the model, revision or file does not exist.
	ErrNotFound = errors.New("not found on registry")
	// ErrGated is returned when the registry refuses access to a gated repository.
	ErrGated = errors.New("gated repository")
	// ErrNeedsRemoteCode is returned for models whose config asks to execute
	// code shipped inside the repository.
	ErrNeedsRemoteCode = errors.New("model requires remote code execution")
	// ErrUnavailable wraps timeouts and server-side failures. Callers may retry.
	ErrUnavailable = errors.New("registry unavailable")
)
