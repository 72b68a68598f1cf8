package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDisconnected is returned when the classification service cannot be reached.
	ErrDisconnected = errors.New("classification service unavailable")
	// ErrNoContacts is returned when an alert is requested without emergency contacts.
	ErrNoContacts = errors.New("no emergency contacts configured")
	// ErrInvalidEventID is returned for empty or placeholder event ids.
	ErrInvalidEventID = errors.New("invalid event id")
	// ErrAlertInProgress is returned when a trigger arrives while a countdown is active.
	ErrAlertInProgress = errors.New("alert already in progress")
	// ErrUnknownSession is returned when no active session matches the given id.
	ErrUnknownSession = errors.New("unknown alert session")
	// ErrAlertAborted is returned by a trigger cancelled before its countdown started.
	ErrAlertAborted = errors.New("alert aborted before countdown started")
	// ErrKeyNotFound is returned by key-value stores for missing keys.
	ErrKeyNotFound = errors.New("key not found")
)

// ServerError is a non-2xx response from the classification service
type ServerError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server error %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: server error %d - %s", e.Operation, e.StatusCode, e.Body)
}

// ValidationError is raised before any network or dispatch action
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DispatchError reports the channels that failed during one dispatch
type DispatchError struct {
	SessionID string
	Outcomes  []DispatchOutcome
}

func (e *DispatchError) Error() string {
	var failed []string
	for _, o := range e.Outcomes {
		if o.Status == DispatchFailed {
			failed = append(failed, string(o.Channel))
		}
	}
	return fmt.Sprintf("dispatch for session %s partially failed: %s", e.SessionID, strings.Join(failed, ", "))
}

func (e *DispatchError) Unwrap() []error {
	var errs []error
	for _, o := range e.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

// PermissionError reports a refused OS permission
type PermissionError struct {
	Permission string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Permission)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
