package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
)

// ExternalError marks a failure of an external collaborator (tabular store
// or the waybill service). The orchestrator retries these; they are never
// swallowed at the adapter level.
type ExternalError struct {
	Service string
	Message string
	Err     error
}

func (e *ExternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *ExternalError) Unwrap() error { return e.Err }

func NewExternal(service, message string, cause error) *ExternalError {
	return &ExternalError{Service: service, Message: message, Err: cause}
}
