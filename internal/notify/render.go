package notify

import (
	"strings"
	"text/template"
	"time"

	"remindflow/internal/domain"
)

var emailTmpl = template.Must(template.New("email").Parse(
	`Hi {{.DisplayName}},

This is a reminder that your task "{{.Title}}" is due on {{.Deadline}}.
{{if .Description}}
Details: {{.Description}}
{{end}}
— remindflow`))

var messageTmpl = template.Must(template.New("message").Parse(
	`Reminder: "{{.Title}}" is due {{.Deadline}}.{{if .Description}} {{.Description}}{{end}}`))

// Renderer produces the per-channel message text for a job payload.
// Deadlines are formatted in the service's civil timezone.
type Renderer struct {
	loc *time.Location
}

func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{loc: loc}
}

type renderCtx struct {
	DisplayName string
	Title       string
	Description string
	Deadline    string
}

func (r *Renderer) ctx(p domain.JobPayload) renderCtx {
	return renderCtx{
		DisplayName: p.DisplayName,
		Title:       p.Title,
		Description: strings.TrimSpace(p.Description),
		Deadline:    p.Deadline.In(r.loc).Format("Mon, 2 Jan 2006 15:04 MST"),
	}
}

func (r *Renderer) Email(p domain.JobPayload) (subject, body string) {
	subject = `Task reminder: ` + p.Title
	var b strings.Builder
	_ = emailTmpl.Execute(&b, r.ctx(p))
	return subject, b.String()
}

func (r *Renderer) Message(p domain.JobPayload) string {
	var b strings.Builder
	_ = messageTmpl.Execute(&b, r.ctx(p))
	return b.String()
}
