package invoice

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sppi/sppi-po/web"
)

// PDFClient exposes the subset of the report client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer fills the invoice template and converts it to PDF.
type Renderer struct {
	tpl    *template.Template
	client PDFClient
}

var indonesianMonths = [12]string{"Januari", "Februari", "Maret", "April", "Mei", "Juni", "Juli", "Agustus", "September", "Oktober", "November", "Desember"}

// NewRenderer parses the invoice template and wires the PDF client.
func NewRenderer(client PDFClient) (*Renderer, error) {
	if client == nil {
		return nil, fmt.Errorf("invoice renderer: pdf client required")
	}
	funcMap := template.FuncMap{
		"formatDate": formatDate,
		"rupiah":     Rupiah,
		"inc":        func(i int) int { return i + 1 },
	}
	tpl, err := template.New("invoice.html").Funcs(funcMap).ParseFS(web.Templates, "templates/invoices/invoice.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tpl: tpl, client: client}, nil
}

// HTML executes the template only.
func (r *Renderer) HTML(inv Invoice) (string, error) {
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, inv); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render executes the template and converts the HTML to PDF bytes.
func (r *Renderer) Render(ctx context.Context, inv Invoice) ([]byte, error) {
	if r == nil || r.tpl == nil || r.client == nil {
		return nil, fmt.Errorf("invoice renderer not initialised")
	}
	html, err := r.HTML(inv)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}

func formatDate(v any) string {
	var t time.Time
	switch d := v.(type) {
	case time.Time:
		t = d
	case *time.Time:
		if d == nil {
			return ""
		}
		t = *d
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d %s %d", t.Day(), indonesianMonths[t.Month()-1], t.Year())
}

// Rupiah formats an amount as "Rp 1.234.567", rounding to whole rupiah.
func Rupiah(d decimal.Decimal) string {
	s := d.Round(0).Abs().StringFixed(0)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	if d.Round(0).IsNegative() {
		return "-Rp " + b.String()
	}
	return "Rp " + b.String()
}

var _ PDFRenderer = (*Renderer)(nil)
