package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"annotate/api/internal/annotation"
	"annotate/api/internal/auth"
	"annotate/api/internal/authpw"
	"annotate/api/internal/export"
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
	errGroupNotFound  = domainError(http.StatusNotFound, "GROUP_NOT_FOUND", "Group not found", nil)
	errGroupForbidden = domainError(http.StatusForbidden, "FORBIDDEN", "Not allowed to read this group", nil)
	errReportsOff     = domainError(http.StatusServiceUnavailable, "REPORTS_UNAVAILABLE", "Report storage not configured", nil)
)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case annotation.IsInvalidOptions(err):
		return http.StatusBadRequest, "INVALID_OPTIONS", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "INVALID_FORMAT", err.Error(), nil
	case annotation.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "STORE_TIMEOUT", "Annotation store timed out", nil
	case errors.Is(err, annotation.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Annotation store unavailable", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusNotImplemented, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CLIENT", "Invalid client credentials", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
