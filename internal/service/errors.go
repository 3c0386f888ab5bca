package service

import (
	"errors"

	"github.com/noah-isme/social-go-api/internal/repository"
)

var (
	// ErrValidation is returned when a required field is empty or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an aggregate or nested node does not exist.
	// Comment deletion also returns it when the caller is not the author.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller lacks ownership or admin rights.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned for membership changes that contradict group state.
	ErrConflict = errors.New("conflict")
	// ErrUnknownNotificationType is returned when no template is registered for a type.
	ErrUnknownNotificationType = errors.New("unknown notification type")
	// ErrInvalidSender is returned when a template needs a resolved sender and none was given.
	ErrInvalidSender = errors.New("invalid notification sender")
)

func mapRepoError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
