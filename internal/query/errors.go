package query

import (
	"errors"
	"fmt"
)

// Build error codes.
const (
	ErrCodeMalformedProjection = "Q001"
	ErrCodeJoinKindMismatch    = "Q002"
	ErrCodeEmptyProjection     = "Q003"
	ErrCodeDuplicateProperty   = "Q004"
	ErrCodeUnknownRelation     = "Q005"
	ErrCodeInvalidAssignment   = "Q006"
	ErrCodeMissingValue        = "Q007"
	ErrCodeMissingWhere        = "Q008"
)

// BuildError is a construction-time contract violation.
type BuildError struct {
	Code    string
	Message string
	Err     error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BuildError) Unwrap() error { return e.Err }

func buildErr(code, format string, args ...any) *BuildError {
	return &BuildError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Code returns the BuildError code carried by err, or "".
func Code(err error) string {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsMalformedProjection reports whether err is a Q001 error.
func IsMalformedProjection(err error) bool {
	return Code(err) == ErrCodeMalformedProjection
}
