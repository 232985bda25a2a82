package app

import "errors"

var (
	// ErrNotFound is returned when a book id resolves to nothing.
	ErrNotFound = errors.New("book not found")

	// ErrForbidden is returned when the caller is not the book's author.
	ErrForbidden = errors.New("you cannot access another user's book")

	// ErrInvalidCredentials deliberately does not reveal whether the email exists.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	ErrEmailAlreadyExists = errors.New("email already registered")
)

// ValidationError carries field-level messages for an expected business
// rejection. It is a result, not a fault: handlers turn it into a structured
// 400 response instead of the generic error path.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
