package domain

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure the API distinguishes for callers.
type Code string

const (
	CodeInvalidProvider      Code = "invalid_provider"
	CodeInvalidModel         Code = "invalid_model"
	CodeUnsupportedModelType Code = "unsupported_model_type"
	CodeCredentialInvalid    Code = "credential_invalid"
	CodeCredentialDecrypt    Code = "credential_decrypt_failed"
	CodeCredentialNotEnabled Code = "credential_not_enabled"
	CodeParameterInvalid     Code = "parameter_invalid"
	CodeContextExceeded      Code = "context_exceeded"
	CodeQuotaExceeded        Code = "quota_exceeded"
	CodeModelCallFailed      Code = "model_call_failed"
	CodeProviderTimeout      Code = "provider_timeout"
	CodeNotFound             Code = "not_found"
	CodeForbidden            Code = "forbidden"
	CodeUnauthenticated      Code = "unauthenticated"
)

// Error carries a taxonomy code, a caller-safe message and an optional
// wrapped cause. The cause is for logging only and must never reach a
// client response.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a coded error with a formatted message.
func E(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an internal cause to a coded error. The cause is kept for
// server-side logs; the message is what the client sees.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the taxonomy code from err, or empty when err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
