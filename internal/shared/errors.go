package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every domain package. Domain code wraps these with
// fmt.Errorf("...: %w", ...) so the message stays readable while
// httpx.RespondError can still map the class to a status code.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated indicates a missing or invalid credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the caller's role may not perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates resource not found or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a status precondition was not met.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict indicates nothing eligible or a uniqueness clash.
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthenticated)
)
