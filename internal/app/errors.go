package app

import (
	"errors"
	"fmt"
	"net/http"

	"orgchart/api/internal/directory"
	"orgchart/api/internal/export"
	"orgchart/api/internal/orgchart"
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, ErrChartNotFound):
		return http.StatusNotFound, "CHART_NOT_FOUND", "Chart not found", nil
	case errors.Is(err, orgchart.ErrUnknownNode):
		return http.StatusNotFound, "NODE_NOT_FOUND", "Node is not part of this chart", nil
	case errors.Is(err, directory.ErrNotFound):
		return http.StatusNotFound, "PERSON_NOT_FOUND", "Person not found in directory", nil
	case errors.Is(err, directory.ErrNoCaller):
		return http.StatusBadRequest, "CALLER_REQUIRED", "Current user is unknown", nil
	case errors.Is(err, orgchart.ErrDirectory):
		return http.StatusBadGateway, "DIRECTORY_UNAVAILABLE", "Directory request failed", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", nil
	case errors.Is(err, export.ErrEmptyTree):
		return http.StatusConflict, "CHART_EMPTY", "Chart has nothing to export", nil
	case errors.Is(err, export.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "EXPORT_STORAGE_DISABLED", "Export storage is not configured", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
