package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"customerqueries/web/internal/auth"
	"customerqueries/web/internal/authpw"
	"customerqueries/web/internal/identity"
	"customerqueries/web/internal/messages"
	"customerqueries/web/internal/view"
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
	errSessionPending = domainError(http.StatusServiceUnavailable, "SESSION_PENDING", "Session lookup has not completed", nil)
	errUnauthorized   = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	errNotFound       = domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	errInvalidBody    = domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	errBodyTooLarge   = domainError(http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)
	errInvalidLimit   = domainError(http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", nil)
)

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *authpw.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationErr.Message, nil
	}
	var fetchErr *messages.FetchError
	if errors.As(err, &fetchErr) {
		return http.StatusBadGateway, "FETCH_FAILED", "Messages unavailable", nil
	}
	switch {
	case errors.Is(err, messages.ErrInvalidMessage):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, identity.ErrNoSession),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, view.ErrUnknownPath), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, view.ErrInvalidSortMode):
		return http.StatusBadRequest, "INVALID_SORT", "sort must be all, recent or oldest", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
