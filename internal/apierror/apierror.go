package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"

	// Pipeline failure kinds. These are persisted on raw records next to the message.
	ErrRequiredFieldMissing  ErrorCode = "REQUIRED_FIELD_MISSING"
	ErrUnknownTransform      ErrorCode = "UNKNOWN_TRANSFORM"
	ErrUnsupportedEntityType ErrorCode = "UNSUPPORTED_ENTITY_TYPE"
	ErrValidationFailure     ErrorCode = "VALIDATION_FAILURE"
	ErrStoreError            ErrorCode = "STORE_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause when Details carries one.
func (e APIError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// As returns the first APIError in err's chain.
func As(err error) (APIError, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return APIError{}, false
}

// KindOf reports the error code carried by err, or ErrInternalServer when err
// carries none.
func KindOf(err error) ErrorCode {
	if apiErr, ok := As(err); ok {
		return apiErr.Code
	}
	return ErrInternalServer
}

// Message returns the human readable message of err without the code prefix.
func Message(err error) string {
	if apiErr, ok := As(err); ok {
		return apiErr.Message
	}
	return err.Error()
}

// IsDeterministic reports whether retrying the same input can never succeed.
func IsDeterministic(err error) bool {
	switch KindOf(err) {
	case ErrRequiredFieldMissing, ErrUnknownTransform, ErrUnsupportedEntityType, ErrValidationFailure, ErrNotFound, ErrConflict:
		return true
	}
	return false
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := As(err); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrRequiredFieldMissing, ErrUnknownTransform, ErrValidationFailure, ErrUnsupportedEntityType:
			return http.StatusUnprocessableEntity
		case ErrStoreError, ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
