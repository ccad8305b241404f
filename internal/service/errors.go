package service

import "net/http"

// AuthError carries an HTTP status alongside the client-facing detail
// message. Handlers render it as {"detail": ...}.
type AuthError struct {
	Detail string
	Status int
}

func (e *AuthError) Error() string {
	return e.Detail
}

func newAuthError(status int, detail string) *AuthError {
	return &AuthError{Detail: detail, Status: status}
}

// ErrUnauthorized constructs the canonical 401 for failed credential
// verification.
func ErrUnauthorized(detail string) *AuthError {
	return newAuthError(http.StatusUnauthorized, detail)
}

// ErrForbidden constructs the canonical 403 for a valid identity without
// shop access.
func ErrForbidden(detail string) *AuthError {
	return newAuthError(http.StatusForbidden, detail)
}

// ErrNotFound constructs the canonical 404 for a missing resource.
func ErrNotFound(detail string) *AuthError {
	return newAuthError(http.StatusNotFound, detail)
}
