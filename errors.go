package trapdoc

import "fmt"

// FormatError reports a malformed container document, filename or metadata
// literal. Decoding aborts on the first FormatError, it is never recovered
// internally.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErrorf(format string, args ...any) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError reports a caller supplied value which is structurally sound
// but semantically out of range, like a device id handed to a constructor
// which is not an 8 digit hex string.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IOError wraps a failure of the underlying storage or transport layer.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}

// Warning carries a non fatal diagnostic emitted while decoding a degraded
// document, like a dropped degenerate contour or a missing metadata field.
// Warnings are returned alongside the result instead of being logged, the
// caller decides whether they are worth reporting.
type Warning struct {
	Reason string
}

func (w Warning) String() string {
	return w.Reason
}

func warnf(format string, args ...any) Warning {
	return Warning{Reason: fmt.Sprintf(format, args...)}
}
