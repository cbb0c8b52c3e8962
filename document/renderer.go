package document

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

// Proposal is the customer-facing snapshot a document is rendered from.
// Internal-only and hidden line items are excluded before it is built.
type Proposal struct {
	DealID        string
	ContactName   string
	VersionNumber int
	GeneratedAt   time.Time
	Items         []ProposalItem
	Subtotal      string
	Taxes         string
	Total         string
}

// ProposalItem is one customer-visible priced line.
type ProposalItem struct {
	Description string
	Quantity    string
	Unit        string
	UnitCost    string
	LineTotal   string
}

// Renderer produces the proposal document bytes.
type Renderer interface {
	Render(ctx context.Context, p Proposal) ([]byte, error)
}

// HTMLRenderer renders proposals with a compiled html/template.
type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{tmpl: template.Must(template.New("proposal").Parse(proposalTemplate))}
}

// Render produces the proposal HTML. A proposal with no customer-visible
// items still renders, showing only the version totals.
func (r *HTMLRenderer) Render(_ context.Context, p Proposal) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("document: render proposal for deal %s: %w", p.DealID, err)
	}
	return buf.Bytes(), nil
}

const proposalTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Proposal {{.DealID}} v{{.VersionNumber}}</title></head>
<body>
<h1>Proposal for {{.ContactName}}</h1>
<p>Version {{.VersionNumber}} &middot; generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</p>
<table>
<thead>
<tr><th>Description</th><th>Qty</th><th>Unit</th><th>Unit Cost</th><th>Line Total</th></tr>
</thead>
<tbody>
{{- range .Items}}
<tr><td>{{.Description}}</td><td>{{.Quantity}}</td><td>{{.Unit}}</td><td>{{.UnitCost}}</td><td>{{.LineTotal}}</td></tr>
{{- end}}
</tbody>
<tfoot>
<tr><td colspan="4">Subtotal</td><td>{{.Subtotal}}</td></tr>
<tr><td colspan="4">Taxes</td><td>{{.Taxes}}</td></tr>
<tr><td colspan="4">Total</td><td>{{.Total}}</td></tr>
</tfoot>
</table>
</body>
</html>
`
