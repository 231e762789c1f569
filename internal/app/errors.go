package app

import (
	"fmt"
	"net/http"
)

// FieldError names one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type DomainError struct {
	Status  int
	Code    string
	Message string
	Fields  []FieldError
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, fields []FieldError) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Fields:  fields,
	}
}

func ErrValidation(message string, fields ...FieldError) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_FAILED", message, fields)
}

func ErrAuthentication(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func ErrAuthorization(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func ErrNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func ErrRateLimited() *DomainError {
	return domainError(http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, retry later", nil)
}

func ErrUnavailable(message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}
