// Package export renders the visible org chart as JSON, CSV, XLSX, HTML, PDF
// or a text outline and optionally uploads the result to object storage.
package export

import (
	"errors"
	"strings"
)

// Format represents the export output format
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatOutline Format = "outline"
	FormatHTML    Format = "html"
	FormatPDF     Format = "pdf"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrEmptyTree indicates the chart has no root to export yet.
	ErrEmptyTree = errors.New("chart has nothing to export")
	// ErrStorageUnavailable indicates no object storage is configured for uploads.
	ErrStorageUnavailable = errors.New("export storage not configured")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

// ParseFormat accepts a format name case-insensitively; blank means JSON.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatOutline, "txt", "text":
		return FormatOutline, nil
	case FormatHTML, "htm":
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

func (f Format) extension() string {
	if f == FormatOutline {
		return "txt"
	}
	return string(f)
}

func (f Format) mimeType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatOutline:
		return "text/plain; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}
