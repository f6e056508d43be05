// Package auth carries the already-authenticated identity handed to the
// core by the HTTP boundary. Login and token issuance happen elsewhere.
package auth

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrForbidden is returned when an actor lacks the role or ownership
// required by an operation.
var ErrForbidden = errors.New("forbidden")

// Role is the coarse permission level attached to an actor.
type Role string

const (
	// RoleClient can manage its own cart and orders.
	RoleClient Role = "CLIENT"
	// RoleManager can operate on any order and register presential sales.
	RoleManager Role = "MANAGER"
)

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	ID    uuid.UUID
	Email string
	Role  Role
}

// IsManager reports whether the actor holds the manager role.
func (a Actor) IsManager() bool {
	return a.Role == RoleManager
}
