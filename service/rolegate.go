package service

import (
	"github.com/AnTengye/dealpipe/backend/model"
)

// Role gate: pure predicate over (actor role, roles permitted for the
// transition). Admin is always authorized. It holds no state.

// Actor is the resolved identity a transition runs as. Resolution is
// the auth layer's job; the pipeline only reads these two fields.
type Actor struct {
	Username string
	Role     string
}

// RoleAllowed reports whether role may act where one of required is
// needed.
func RoleAllowed(role string, required ...string) bool {
	if role == model.RoleAdmin {
		return true
	}
	for _, r := range required {
		if role == r {
			return true
		}
	}
	return false
}

// Authorize returns an AuthorizationError unless the actor holds one
// of the required roles (or admin).
func Authorize(actor Actor, required ...string) error {
	if RoleAllowed(actor.Role, required...) {
		return nil
	}
	return &model.AuthorizationError{Required: requiredLabel(required), Actual: actor.Role}
}

func requiredLabel(required []string) string {
	if len(required) == 0 {
		return ""
	}
	label := required[0]
	for _, r := range required[1:] {
		label += " or " + r
	}
	return label
}
