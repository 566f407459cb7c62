package shell

import "errors"

// Stable error kinds of the supervisor. Operations wrap exactly one of
// these with fmt.Errorf("...: %w", ...); callers classify with errors.Is.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNotFound         = errors.New("not found")
	ErrLaunchFailed     = errors.New("launch failed")
	ErrSandboxViolation = errors.New("sandbox violation")
)

// Kind maps err to the stable kind name reported across the API boundary.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLaunchFailed):
		return "launch_failed"
	case errors.Is(err, ErrSandboxViolation):
		return "sandbox_violation"
	default:
		return "internal"
	}
}
