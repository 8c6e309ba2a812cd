// Package model holds Librarium domain models.
package model

import (
	"fmt"
	"strings"
	"time"
)

// UserStatus is the account approval state.
type UserStatus string

const (
	UserStatusPending  UserStatus = "PENDING"
	UserStatusApproved UserStatus = "APPROVED"
	UserStatusRejected UserStatus = "REJECTED"
)

// UserStatuses lists every status in display order.
var UserStatuses = []UserStatus{UserStatusPending, UserStatusApproved, UserStatusRejected}

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusPending, UserStatusApproved, UserStatusRejected:
		return true
	}
	return false
}

// ParseUserStatus parses a case-insensitive status name.
func ParseUserStatus(v string) (UserStatus, error) {
	s := UserStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown user status %q", v)
	}
	return s, nil
}

// Role is the user's privilege level.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// ParseRole parses a case-insensitive role name.
func ParseRole(v string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(v)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", v)
	}
	return r, nil
}

// User is a library member or administrator.
type User struct {
	ID             string
	FullName       string
	Email          string
	UniversityID   int
	UniversityCard string
	// bcrypt hash, never serialized
	PasswordHash     string
	Status           UserStatus
	Role             Role
	LastActivityDate time.Time
	CreatedAt        time.Time
}

// CanBorrow reports whether the user is eligible to borrow books.
func (u *User) CanBorrow() bool {
	return u.Status == UserStatusApproved
}
