package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain error taxonomy. Handlers map these to HTTP status codes; a
// rejected transition never mutates the persisted aggregate.

// AuthorizationError: actor role does not match the stage's required
// role. Never retried.
type AuthorizationError struct {
	Required string
	Actual   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("action restricted to role %s", e.Required)
}

// ValidationError: a business rule failed (ratio sum, missing field,
// missing over-allocation note, empty BOM). User-actionable, not a
// system fault.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// StateConflictError: the transition's declared source stage (or the
// caller's expected version) no longer matches the persisted state.
// Recoverable by re-fetching.
type StateConflictError struct {
	Expected string
	Actual   string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("this contract has changed, please reload (expected %s, found %s)", e.Expected, e.Actual)
}

// IntegrityError: the committed snapshot hash no longer matches the
// stored baseline; the transition is blocked.
type IntegrityError struct {
	Summary string
}

func (e *IntegrityError) Error() string {
	return "integrity check failed: " + e.Summary
}

// NotFoundError: the aggregate does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// HTTPStatus maps a domain error to the status code the API returns.
func HTTPStatus(err error) int {
	var (
		authErr      *AuthorizationError
		validErr     *ValidationError
		conflictErr  *StateConflictError
		integrityErr *IntegrityError
		notFoundErr  *NotFoundError
	)
	switch {
	case errors.As(err, &authErr):
		return http.StatusForbidden
	case errors.As(err, &validErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &integrityErr):
		return http.StatusForbidden
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
