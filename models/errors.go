package models

import "fmt"

// ErrorKind is the application error taxonomy. The HTTP layer maps each
// kind to a status code; services never reference HTTP directly.
type ErrorKind int

const (
	// ErrorKindValidation covers bad input, including invalid or
	// mismatched OAuth state tokens.
	ErrorKindValidation ErrorKind = iota
	// ErrorKindConflict means the resource already exists, e.g. a second
	// connect for the same (user, provider).
	ErrorKindConflict
	// ErrorKindNotFound means the requested integration does not exist.
	ErrorKindNotFound
	// ErrorKindIntegration is an upstream provider failure during token
	// exchange or sync. The provider's error text is preserved.
	ErrorKindIntegration
)

// AppError is the error type returned by the integration services.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(message string) *AppError {
	return &AppError{Kind: ErrorKindValidation, Message: message}
}

func NewConflictError(message string) *AppError {
	return &AppError{Kind: ErrorKindConflict, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Kind: ErrorKindNotFound, Message: message}
}

func NewIntegrationError(message string, err error) *AppError {
	return &AppError{Kind: ErrorKindIntegration, Message: message, Err: err}
}
