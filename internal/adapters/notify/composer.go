package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"github.com/okian/rsvp/internal/domain/model"
)

//go:embed locales/active.*.toml
var localeFS embed.FS

var localeFiles = []string{"locales/active.en.toml", "locales/active.es.toml"}

// Message is a rendered email body.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// row is one label/value line of a summary table.
type row struct {
	Label string
	Value string
}

type htmlData struct {
	Heading   string
	Lead      string
	Rows      []row
	Footer    string
	Signature string
}

var htmlLayout = template.Must(template.New("email").Parse(`<div style="font-family:system-ui,-apple-system,Segoe UI,Roboto,Helvetica,Arial,sans-serif;line-height:1.5">
<h2>{{.Heading}}</h2>
{{- if .Lead}}
<p>{{.Lead}}</p>
{{- end}}
<table style="margin-top:8px">
{{- range .Rows}}
<tr><td><strong>{{.Label}}:</strong></td><td>{{.Value}}</td></tr>
{{- end}}
</table>
{{- if .Footer}}
<p style="margin-top:16px">{{.Footer}}</p>
{{- end}}
{{- if .Signature}}
<p>{{.Signature}}</p>
{{- end}}
</div>
`))

// Composer renders localized guest and admin emails. Guest supplied values
// only ever reach the HTML body through html/template, so they are escaped.
type Composer struct {
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
	site      string
	signature string
}

// NewComposer loads the embedded translations. Unknown locales fall back to
// English.
func NewComposer(locale, site, signature string) (*Composer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	for _, file := range localeFiles {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrTemplate, file, err)
		}
	}

	langs := []string{language.English.String()}
	if tag, err := language.Parse(strings.TrimSpace(locale)); err == nil {
		langs = append([]string{tag.String()}, langs...)
	}

	return &Composer{
		bundle:    bundle,
		localizer: i18n.NewLocalizer(bundle, langs...),
		site:      site,
		signature: signature,
	}, nil
}

// Guest renders the confirmation sent to the guest.
func (c *Composer) Guest(g model.Guest) (Message, error) {
	subject, err := c.t("GuestSubject", map[string]any{"Site": c.site})
	if err != nil {
		return Message{}, err
	}

	greeting, err := c.greeting(g)
	if err != nil {
		return Message{}, err
	}
	received, err := c.t("GuestReceived", nil)
	if err != nil {
		return Message{}, err
	}
	hint, err := c.t("GuestReplyHint", nil)
	if err != nil {
		return Message{}, err
	}
	rows, err := c.rows(g, false)
	if err != nil {
		return Message{}, err
	}

	body, err := renderHTML(htmlData{
		Heading:   greeting,
		Lead:      received,
		Rows:      rows,
		Footer:    hint,
		Signature: c.signature,
	})
	if err != nil {
		return Message{}, err
	}

	var text strings.Builder
	text.WriteString(greeting + " " + received + "\n")
	writeRows(&text, rows)
	text.WriteString(hint + "\n")
	if c.signature != "" {
		text.WriteString(c.signature + "\n")
	}

	return Message{Subject: subject, HTML: body, Text: text.String()}, nil
}

// Admin renders the notification sent to the organizers.
func (c *Composer) Admin(g model.Guest) (Message, error) {
	name := g.FullName()
	if name == "" {
		unnamed, err := c.t("Unnamed", nil)
		if err != nil {
			return Message{}, err
		}
		name = unnamed
	}

	subject, err := c.t("AdminSubject", map[string]any{"Name": name})
	if err != nil {
		return Message{}, err
	}
	heading, err := c.t("AdminHeading", nil)
	if err != nil {
		return Message{}, err
	}
	rows, err := c.rows(g, true)
	if err != nil {
		return Message{}, err
	}

	body, err := renderHTML(htmlData{Heading: heading, Rows: rows})
	if err != nil {
		return Message{}, err
	}

	var text strings.Builder
	text.WriteString(heading + "\n")
	writeRows(&text, rows)

	return Message{Subject: subject, HTML: body, Text: text.String()}, nil
}

func (c *Composer) greeting(g model.Guest) (string, error) {
	if first := strings.TrimSpace(model.Text(g.FirstName)); first != "" {
		return c.t("GuestGreeting", map[string]any{"FirstName": first})
	}
	return c.t("GuestGreetingAnonymous", nil)
}

// rows lists the present fields. Admin mails also carry the receipt time.
func (c *Composer) rows(g model.Guest, admin bool) ([]row, error) {
	type field struct {
		id    string
		value string
	}
	fields := []field{
		{"LabelName", g.FullName()},
		{"LabelEmail", g.Recipient()},
		{"LabelPhone", strings.TrimSpace(model.Text(g.Number))},
	}
	if admin && !g.CreatedAt.IsZero() {
		fields = append(fields, field{"LabelReceived", g.CreatedAt.UTC().Format(time.RFC1123)})
	}

	out := make([]row, 0, len(fields))
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		label, err := c.t(f.id, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, row{Label: label, Value: f.value})
	}
	return out, nil
}

func (c *Composer) t(id string, data map[string]any) (string, error) {
	msg, err := c.localizer.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTemplate, id, err)
	}
	return msg, nil
}

func renderHTML(d htmlData) (string, error) {
	var buf bytes.Buffer
	if err := htmlLayout.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTemplate, err)
	}
	return buf.String(), nil
}

func writeRows(b *strings.Builder, rows []row) {
	for _, r := range rows {
		b.WriteString(r.Label + ": " + r.Value + "\n")
	}
}
