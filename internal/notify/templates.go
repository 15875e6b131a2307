package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/kmun/registration-service/internal/domain"
)

type emailTemplate struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// Renderer turns notifications into messages.
type Renderer struct {
	eventName string
	templates map[domain.NotificationKind]emailTemplate
}

type templateData struct {
	Event string
	Data  map[string]string
	// Body holds pre-sanitized HTML for bulk mail.
	Body htmltemplate.HTML
}

// NewRenderer parses the built-in templates.
func NewRenderer(eventName string) *Renderer {
	r := &Renderer{eventName: eventName, templates: map[domain.NotificationKind]emailTemplate{}}
	for kind, src := range builtinTemplates {
		r.templates[kind] = emailTemplate{
			subject: src.subject,
			html:    htmltemplate.Must(htmltemplate.New(string(kind)).Parse(src.html)),
			text:    texttemplate.Must(texttemplate.New(string(kind)).Parse(src.text)),
		}
	}
	return r
}

// Render produces the message for n.
func (r *Renderer) Render(n domain.Notification) (Message, error) {
	tpl, ok := r.templates[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("no template for notification kind %q", n.Kind)
	}
	data := templateData{Event: r.eventName, Data: n.Data}
	// bulk html is sanitized when the notification is built.
	if n.Kind == domain.NotificationBulk {
		data.Body = htmltemplate.HTML(n.Data["html"]) //nolint:gosec
	}

	subject := tpl.subject
	if s := n.Data["subject"]; s != "" {
		subject = s
	}

	var html, text bytes.Buffer
	if err := tpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", n.Kind, err)
	}
	if err := tpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", n.Kind, err)
	}
	return Message{
		Provider: n.Provider,
		To:       n.To,
		Subject:  subject,
		HTML:     html.String(),
		Text:     text.String(),
	}, nil
}

type templateSource struct {
	subject string
	html    string
	text    string
}

var builtinTemplates = map[domain.NotificationKind]templateSource{
	domain.NotificationCredentialDisclosure: {
		subject: "Your registration login details",
		html: `<p>Dear {{.Data.name}},</p>
<p>Thank you for registering for {{.Event}}. An account has been created for you.</p>
<table>
<tr><td>Delegate ID</td><td><strong>{{.Data.externalId}}</strong></td></tr>
<tr><td>Email</td><td>{{.Data.email}}</td></tr>
<tr><td>Password</td><td><strong>{{.Data.password}}</strong></td></tr>
</table>
<p>Please change your password after your first login.</p>`,
		text: `Dear {{.Data.name}},

Thank you for registering for {{.Event}}. An account has been created for you.

Delegate ID: {{.Data.externalId}}
Email: {{.Data.email}}
Password: {{.Data.password}}

Please change your password after your first login.
`,
	},
	domain.NotificationRegistrationReceived: {
		subject: "We received your registration",
		html: `<p>Dear {{.Data.name}},</p>
<p>Your registration for {{.Event}} has been received and is pending review.</p>
<p>Delegate ID: <strong>{{.Data.externalId}}</strong><br>First committee preference: {{.Data.committee}}</p>
<p>You will hear from us once committee allocations are published.</p>`,
		text: `Dear {{.Data.name}},

Your registration for {{.Event}} has been received and is pending review.

Delegate ID: {{.Data.externalId}}
First committee preference: {{.Data.committee}}

You will hear from us once committee allocations are published.
`,
	},
	domain.NotificationCommitteeAllocated: {
		subject: "Your committee allocation",
		html: `<p>Dear {{.Data.name}},</p>
<p>You have been allocated to <strong>{{.Data.committee}}</strong> representing <strong>{{.Data.portfolio}}</strong> at {{.Event}}.</p>`,
		text: `Dear {{.Data.name}},

You have been allocated to {{.Data.committee}} representing {{.Data.portfolio}} at {{.Event}}.
`,
	},
	domain.NotificationWelcome: {
		subject: "Your account has been created",
		html: `<p>Dear {{.Data.name}},</p>
<p>An account with the role {{.Data.role}} has been created for you on {{.Event}}.</p>
<p>ID: <strong>{{.Data.externalId}}</strong><br>Email: {{.Data.email}}</p>`,
		text: `Dear {{.Data.name}},

An account with the role {{.Data.role}} has been created for you on {{.Event}}.

ID: {{.Data.externalId}}
Email: {{.Data.email}}
`,
	},
	domain.NotificationBulk: {
		subject: "",
		html:    `{{.Body}}`,
		text:    `{{index .Data "text"}}`,
	},
}
