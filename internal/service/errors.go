// errors.go holds the business errors of the service layer.
package service

import (
	"errors"

	"github.com/bigkaa/librarium/internal/domain/lending"
)

// Lending errors are re-exported so callers need only this package.
var (
	ErrNotEligible       = lending.ErrNotEligible
	ErrBookNotFound      = lending.ErrBookNotFound
	ErrNoCopiesAvailable = lending.ErrNoCopiesAvailable
	ErrRecordNotFound    = lending.ErrRecordNotFound
	ErrAlreadyReturned   = lending.ErrAlreadyReturned
)

var (
	// ErrUserNotFound means the target user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken means another account already uses the email.
	ErrEmailTaken = errors.New("email is already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrForbidden means the actor lacks the privileges for the action.
	ErrForbidden = errors.New("insufficient privileges")
	// ErrValidation wraps every input validation failure.
	ErrValidation = errors.New("validation error")
	// ErrStorageUnavailable means object storage rejected or failed an upload.
	ErrStorageUnavailable = errors.New("object storage unavailable")
)
