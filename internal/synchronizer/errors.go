package synchronizer

import (
	"errors"
	"fmt"

	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/policy"
)

var (
	ErrDenied                 = errors.New("authorization denied")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrMalformedRecord        = errors.New("malformed record")
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrNotLoggedIn            = errors.New("not logged in")
)

// DeniedError reports an intent the policy refused. Nothing was changed.
type DeniedError struct {
	Action policy.Action
	Role   models.Role
	TaskID string
	Reason policy.Reason
}

func (e *DeniedError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("%s denied for %s: %s", e.Action, e.Role, e.Reason)
	}
	return fmt.Sprintf("%s on task %s denied for %s: %s", e.Action, e.TaskID, e.Role, e.Reason)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
}

func malformed(collection, id string, err error) error {
	return fmt.Errorf("%w: %s/%s: %v", ErrMalformedRecord, collection, id, err)
}
