package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"orgchart/api/internal/orgchart"
)

//go:embed templates/chart.html
var templateFS embed.FS

var chartTemplate = template.Must(template.ParseFS(templateFS, "templates/chart.html"))

type chartPage struct {
	Title string
	Root  htmlNode
}

// htmlNode is a person card, or a "+N more" line when More is set.
type htmlNode struct {
	Name       string
	JobTitle   string
	Department string
	Mail       string
	More       string
	Children   []htmlNode
}

func toHTMLNode(v *orgchart.VisibleNode) htmlNode {
	out := htmlNode{
		Name:       v.Node.DisplayName,
		JobTitle:   v.Node.JobTitle,
		Department: v.Node.Department,
		Mail:       v.Node.Mail,
	}
	for _, child := range v.Children {
		switch c := child.(type) {
		case *orgchart.VisibleNode:
			out.Children = append(out.Children, toHTMLNode(c))
		case orgchart.MoreMarker:
			out.Children = append(out.Children, htmlNode{More: moreLabel(c)})
		}
	}
	return out
}

func renderHTML(tree *orgchart.VisibleNode) ([]byte, error) {
	page := chartPage{
		Title: "Org chart: " + tree.Node.DisplayName,
		Root:  toHTMLNode(tree),
	}
	var buf bytes.Buffer
	if err := chartTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}
