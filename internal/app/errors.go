package app

import (
	"errors"
	"fmt"
	"net/http"

	"trove/api/internal/store"
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

var (
	errForbidden = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errNotFound  = domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
)

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// storeError turns store sentinels into domain errors. Anything else passes
// through and becomes a 500.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return errNotFound
	case errors.Is(err, store.ErrOrderMismatch):
		return domainError(http.StatusConflict, "ORDER_MISMATCH", "Ordered ids do not match the container", nil)
	case errors.Is(err, store.ErrDuplicateContent):
		return domainError(http.StatusConflict, "DUPLICATE_CONTENT", "Content is already in this flow", nil)
	case errors.Is(err, store.ErrAnchorNotFound):
		return domainError(http.StatusUnprocessableEntity, "ANCHOR_NOT_FOUND", "Insert-before node is not in this stage", nil)
	case errors.Is(err, store.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	default:
		return err
	}
}

// resultCode labels a mutation outcome for metrics.
func resultCode(err error) string {
	if err == nil {
		return "ok"
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "SERVER_ERROR"
}
