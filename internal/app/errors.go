package app

import "errors"

var (
	// ErrValidation marks malformed or missing input. User-correctable;
	// handlers surface the wrapped detail inline.
	ErrValidation = errors.New("invalid input")

	// ErrForbidden marks an operation refused for lack of privilege.
	// Nothing is ever partially applied before this is returned.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a missing submission or user. Submissions the
	// caller may not see are also reported as not found.
	ErrNotFound = errors.New("not found")

	// ErrUpload marks a blob storage failure. The whole create attempt
	// aborts; nothing reaches the submission store.
	ErrUpload = errors.New("upload failed")

	// ErrUnauthenticated is returned when an operation requires a signed-in
	// principal and none was resolved.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")

	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidSession = errors.New("invalid session")
)
