package evs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("concept not found")
)

// ServerError is any failure reading a concept other than the service reporting it
// does not exist: bad status, malformed payload or a transport failure.
type ServerError struct {
	Code    string
	Status  int
	Message string
	cause   error
}

func (e *ServerError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("evs server error fetching %s: status %d: %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("evs server error fetching %s: %s", e.Code, e.Message)
}

func (e *ServerError) Unwrap() error {
	return e.cause
}

func notFound(code string) error {
	return errors.Wrapf(ErrNotFound, "code %s", code)
}

// IsNotFound reports whether err says the service has no concept for a code.
func IsNotFound(err error) bool {
	return err != nil && errors.Cause(err) == ErrNotFound
}

func IsServerError(err error) bool {
	_, ok := errors.Cause(err).(*ServerError)
	return ok
}
