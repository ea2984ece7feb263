// Package apperr defines the error taxonomy shared by the integration
// services: input validation failures, failed calls against a remote
// collaborator, and remote responses that cannot be decoded.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by lookups that matched no remote resource.
var ErrNotFound = errors.New("resource not found")

// ValidationError reports missing or malformed input detected before any
// remote call was attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Validation is shorthand for &ValidationError{Field: field, Message: msg}.
func Validation(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// RemoteCallError reports a non-2xx response or transport failure from a
// remote collaborator (FHIR store, object store, time-series store,
// prediction or insight service).
type RemoteCallError struct {
	Method      string
	Resource    string
	StatusCode  int
	Diagnostics string
	Err         error
}

func (e *RemoteCallError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Method, e.Resource)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Diagnostics != "" {
		msg += ": " + e.Diagnostics
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// DeserializationError reports a remote response that could not be parsed
// into the expected shape.
type DeserializationError struct {
	Resource string
	Err      error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Resource, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// HTTPStatus maps an error from the taxonomy to the status code the API
// layer responds with.
func HTTPStatus(err error) int {
	var ve *ValidationError
	var re *RemoteCallError
	var de *DeserializationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &re):
		if re.StatusCode == 0 {
			return http.StatusBadGateway
		}
		if re.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.As(err, &de):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
