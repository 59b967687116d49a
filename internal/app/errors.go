package app

import (
	"fmt"
	"net/http"
	"time"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Error codes for the document lifecycle. Validation, lock, and skew errors
// carry field-identifying detail; internal errors surface only a generic
// message.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeDocLocked          = "DOC_LOCKED"
	CodeDocNotYetAvailable = "DOC_NOT_YET_AVAILABLE"
	CodeClockSkewRejected  = "CLOCK_SKEW_REJECTED"
	CodeInternal           = "INTERNAL_ERROR"
)

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, details)
}

func docLockedError(docKey string) *DomainError {
	return domainError(http.StatusLocked, CodeDocLocked, "Day can no longer be edited", map[string]any{"docKey": docKey})
}

func docNotYetAvailableError(docKey string) *DomainError {
	return domainError(http.StatusConflict, CodeDocNotYetAvailable, "Day is not yet available", map[string]any{"docKey": docKey})
}

func clockSkewError(clientUpdatedAt, serverReceivedAt time.Time) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeClockSkewRejected,
		"Client timestamp is too far ahead of server time", map[string]any{
			"clientUpdatedAt":  clientUpdatedAt.Format(time.RFC3339Nano),
			"serverReceivedAt": serverReceivedAt.Format(time.RFC3339Nano),
		})
}

func internalError() *DomainError {
	return domainError(http.StatusInternalServerError, CodeInternal, "Internal error", nil)
}
