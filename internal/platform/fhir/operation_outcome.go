package fhir

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vhealth/integration/internal/platform/apperr"
)

// OperationOutcome severity levels defined by FHIR R4.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes defined by FHIR R4.
const (
	IssueTypeInvalid     = "invalid"
	IssueTypeRequired    = "required"
	IssueTypeNotFound    = "not-found"
	IssueTypeProcessing  = "processing"
	IssueTypeSecurity    = "security"
	IssueTypeException   = "exception"
	IssueTypeTimeout     = "timeout"
	IssueTypeTransient   = "transient"
	IssueTypeStructure   = "structure"
	IssueTypeTooCostly   = "too-costly"
)

// OutcomeFromError converts an error from the apperr taxonomy into an
// OperationOutcome with the matching issue type.
func OutcomeFromError(err error) *OperationOutcome {
	var ve *apperr.ValidationError
	var re *apperr.RemoteCallError
	var de *apperr.DeserializationError

	switch {
	case errors.As(err, &ve):
		outcome := NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, ve.Message)
		if ve.Field != "" {
			outcome.Issue[0].Expression = []string{ve.Field}
		}
		return outcome
	case errors.Is(err, apperr.ErrNotFound):
		return NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, err.Error())
	case errors.As(err, &re):
		return NewOperationOutcome(IssueSeverityError, IssueTypeTransient, re.Error())
	case errors.As(err, &de):
		return NewOperationOutcome(IssueSeverityError, IssueTypeStructure, de.Error())
	default:
		return NewOperationOutcome(IssueSeverityError, IssueTypeException, err.Error())
	}
}

// ErrorResponse writes err as an OperationOutcome with the status code
// chosen by apperr.HTTPStatus. echo.HTTPError values are passed through so
// the framework error handler keeps formatting them.
func ErrorResponse(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, OutcomeFromError(err))
}
