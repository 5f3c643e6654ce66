// Package exitcode provides standardized exit codes for contentaudit
package exitcode

import "fmt"

// Exit codes for the contentaudit CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	AuditFailed     = 3
	FileSystemError = 4
	SchemaError     = 5
	IndexError      = 6
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case AuditFailed:
		return "Audit failed"
	case FileSystemError:
		return "File system error"
	case SchemaError:
		return "Schema error"
	case IndexError:
		return "Index error"
	default:
		return "Unknown error"
	}
}

// Error carries a process exit code out of a command's RunE.
type Error struct {
	Code int
	Err  error
}

// New wraps err with an exit code.
func New(code int, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d: %s", e.Code, String(e.Code))
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
