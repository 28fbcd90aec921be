package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"orgchart/api/internal/orgchart"
)

// Uploader stores a rendered export and returns where it was put.
type Uploader interface {
	Upload(ctx context.Context, key string, res *Result) (string, error)
}

// Service renders chart exports and hands them to object storage.
type Service struct {
	uploader Uploader
	printer  Printer
	now      func() time.Time
}

// NewService creates a new export service. Either collaborator may be nil,
// which disables uploads or PDF output respectively.
func NewService(uploader Uploader, printer Printer) *Service {
	return &Service{uploader: uploader, printer: printer, now: time.Now}
}

// Export renders tree in format. The file is named after the root person.
func (s *Service) Export(ctx context.Context, tree *orgchart.VisibleNode, format Format) (*Result, error) {
	data, err := s.render(ctx, tree, format)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     data,
		Filename: fmt.Sprintf("orgchart-%s.%s", safeName(tree.ID), format.extension()),
		MimeType: format.mimeType(),
	}, nil
}

// ExportAndUpload renders the tree and stores it under charts/{chartID}/.
func (s *Service) ExportAndUpload(ctx context.Context, chartID string, tree *orgchart.VisibleNode, format Format) (*Result, string, error) {
	if s.uploader == nil {
		return nil, "", ErrStorageUnavailable
	}
	res, err := s.Export(ctx, tree, format)
	if err != nil {
		return nil, "", err
	}
	key := fmt.Sprintf("charts/%s/%s-%s", safeName(chartID), s.now().UTC().Format("20060102T150405Z"), res.Filename)
	location, err := s.uploader.Upload(ctx, key, res)
	if err != nil {
		return nil, "", fmt.Errorf("upload export: %w", err)
	}
	return res, location, nil
}

func (s *Service) render(ctx context.Context, tree *orgchart.VisibleNode, format Format) ([]byte, error) {
	if format != FormatPDF {
		return Render(tree, format)
	}
	if s.printer == nil {
		return nil, ErrPDFDependencyMissing
	}
	page, err := Render(tree, FormatHTML)
	if err != nil {
		return nil, err
	}
	return s.printer.PrintPDF(ctx, page)
}

func safeName(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, value)
}
