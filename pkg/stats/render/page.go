package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/Masterminds/sprig/v3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/marzstat/marzstat/pkg/stats/dashboard"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// pageData is the data passed to the dashboard template.
type pageData struct {
	Labels    Labels
	Dashboard *dashboard.Dashboard
	Sections  []Section
	Specs     map[string]ChartSpec
}

// Page renders dashboards as a standalone HTML page.
type Page struct {
	tmpl *template.Template
}

// NewPage parses the embedded dashboard template.
func NewPage() (*Page, error) {
	funcs := sprig.FuncMap()
	funcs["renderHTML"] = func(t table.Writer) template.HTML {
		return template.HTML(t.RenderHTML()) //nolint:gosec
	}

	tmpl, err := template.New("dashboard.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard template: %w", err)
	}

	return &Page{tmpl: tmpl}, nil
}

// Render writes the page of d to w. Output is buffered so that nothing is
// written when the template fails.
func (p *Page) Render(w io.Writer, d *dashboard.Dashboard, l Labels) error {
	sections := Sections(d, l)

	specs := make(map[string]ChartSpec)

	for _, s := range sections {
		for _, c := range s.Charts {
			specs[c.ID] = c.Spec
		}
	}

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, pageData{Labels: l, Dashboard: d, Sections: sections, Specs: specs}); err != nil {
		return fmt.Errorf("failed to render dashboard page: %w", err)
	}

	_, err := buf.WriteTo(w)

	return err
}
