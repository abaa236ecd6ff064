package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/repositories"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidTarget         = conversation.ErrInvalidTarget
	ErrSelfTarget            = errors.New("cannot address yourself")
	ErrEmptyMessage          = errors.New("message has no content and no attachments")
	ErrTooManyMaterials      = errors.New("too many linked materials")
	ErrTooManyFiles          = errors.New("too many attached files")
	ErrUnknownMaterial       = errors.New("linked material does not exist")
	ErrFileNotOwned          = errors.New("attached file does not belong to sender")
	ErrFileTooLarge          = errors.New("file too large")
	ErrNotMember             = errors.New("not a member of this group")
	ErrMembershipNotApproved = errors.New("group membership is not approved")
	ErrAlreadyMember         = errors.New("already a member of this group")
	ErrOwnerCannotLeave      = errors.New("the owner cannot leave the group")
	ErrInvalidMemberState    = errors.New("membership is not in a state that allows this")
	ErrRateLimited           = errors.New("rate limit exceeded")
)

// ValidationError carries every field problem found in one request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// notFound turns a missing row into ErrNotFound naming what was missing.
func notFound(err error, what string) error {
	if repositories.IsNotFound(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uint
	Role string
}

// IsAdmin reports whether the caller may use moderation overrides.
func (a Actor) IsAdmin() bool {
	return a.Role == models.ProfileRoleAdmin
}
