package invites

import (
	"errors"
	"fmt"

	"github.com/aerodrome-observer/backend/internal/models"
)

var (
	// ErrNotFound is returned by the store when no invite matches.
	ErrNotFound = errors.New("invite not found")
	// ErrTokenTaken is returned by the store when a generated token collides.
	ErrTokenTaken = errors.New("invite token already exists")
)

// Error carries a Reason from the invite taxonomy and the underlying cause, if any.
type Error struct {
	Reason models.Reason
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the taxonomy reason from err. Errors outside the taxonomy are
// reported as StoreUnavailable.
func ReasonOf(err error) models.Reason {
	if err == nil {
		return models.ReasonNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if errors.Is(err, ErrNotFound) {
		return models.ReasonNotFound
	}
	return models.ReasonStoreUnavailable
}

func unauthorized(detail string) error {
	return &Error{Reason: models.ReasonUnauthorized, Detail: detail}
}

func invalidArgument(detail string) error {
	return &Error{Reason: models.ReasonInvalidArgument, Detail: detail}
}

func storeUnavailable(op string, err error) error {
	return &Error{Reason: models.ReasonStoreUnavailable, Err: fmt.Errorf("%s: %w", op, err)}
}
