package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"orgchart/api/internal/orgchart"
)

const sheetName = "Org chart"

var columns = []string{"depth", "id", "displayName", "jobTitle", "department", "mail", "managerId"}

// row is one line of a tabular export. Markers carry "+N more" as their name.
type row struct {
	Depth       int
	ID          string
	DisplayName string
	JobTitle    string
	Department  string
	Mail        string
	ManagerID   string
}

func (r row) strings() []string {
	return []string{strconv.Itoa(r.Depth), r.ID, r.DisplayName, r.JobTitle, r.Department, r.Mail, r.ManagerID}
}

func flatten(tree *orgchart.VisibleNode) []row {
	var rows []row
	tree.Walk(func(child orgchart.VisibleChild, depth int, parentID string) {
		switch c := child.(type) {
		case *orgchart.VisibleNode:
			rows = append(rows, row{
				Depth:       depth,
				ID:          c.ID,
				DisplayName: c.Node.DisplayName,
				JobTitle:    c.Node.JobTitle,
				Department:  c.Node.Department,
				Mail:        c.Node.Mail,
				ManagerID:   parentID,
			})
		case orgchart.MoreMarker:
			rows = append(rows, row{
				Depth:       depth,
				ID:          c.ID,
				DisplayName: moreLabel(c),
				ManagerID:   parentID,
			})
		}
	})
	return rows
}

func moreLabel(m orgchart.MoreMarker) string {
	return fmt.Sprintf("+%d more", m.RemainingCount)
}

// Render encodes the visible tree in the requested format. PDF needs a
// Printer and is produced by Service.Export instead.
func Render(tree *orgchart.VisibleNode, format Format) ([]byte, error) {
	if tree == nil {
		return nil, ErrEmptyTree
	}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(tree, "", "  ")
	case FormatCSV:
		return renderCSV(tree)
	case FormatXLSX:
		return renderXLSX(tree)
	case FormatOutline:
		return renderOutline(tree), nil
	case FormatHTML:
		return renderHTML(tree)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func renderCSV(tree *orgchart.VisibleNode) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range flatten(tree) {
		if err := w.Write(r.strings()); err != nil {
			return nil, fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderXLSX(tree *orgchart.VisibleNode) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "G1", bold); err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, r := range flatten(tree) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{r.Depth, r.ID, r.DisplayName, r.JobTitle, r.Department, r.Mail, r.ManagerID}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func renderOutline(tree *orgchart.VisibleNode) []byte {
	var b strings.Builder
	tree.Walk(func(child orgchart.VisibleChild, depth int, _ string) {
		b.WriteString(strings.Repeat("  ", depth))
		switch c := child.(type) {
		case *orgchart.VisibleNode:
			b.WriteString("- ")
			b.WriteString(c.Node.DisplayName)
			if c.Node.JobTitle != "" {
				b.WriteString(" (" + c.Node.JobTitle + ")")
			}
		case orgchart.MoreMarker:
			b.WriteString("- " + moreLabel(c))
		}
		b.WriteByte('\n')
	})
	return []byte(b.String())
}
