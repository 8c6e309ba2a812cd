// Package rbac decides what a principal may do based on its role.
// Roles are ordered by weight; a higher role includes every lower one.
package rbac

import (
	"errors"

	"github.com/bigkaa/librarium/internal/domain/model"
)

// ErrSelfModification is returned when an admin targets their own account
// with a delete or a demotion.
var ErrSelfModification = errors.New("admins cannot delete or demote themselves")

var roleWeight = map[model.Role]int{
	model.RoleUser:  1,
	model.RoleAdmin: 2,
}

// Satisfies reports whether have grants at least the privileges of need.
// Unknown roles satisfy nothing.
func Satisfies(have, need model.Role) bool {
	wh, ok := roleWeight[have]
	if !ok {
		return false
	}
	return wh >= roleWeight[need]
}

// IsAdmin reports whether role carries admin privileges.
func IsAdmin(role model.Role) bool {
	return Satisfies(role, model.RoleAdmin)
}

// CheckRoleChange validates that actorID may set targetID's role to newRole.
func CheckRoleChange(actorID, targetID string, newRole model.Role) error {
	if actorID == targetID && !IsAdmin(newRole) {
		return ErrSelfModification
	}
	return nil
}

// CheckDelete validates that actorID may delete targetID.
func CheckDelete(actorID, targetID string) error {
	if actorID == targetID {
		return ErrSelfModification
	}
	return nil
}
