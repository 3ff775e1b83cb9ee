// Package notify delivers transactional email. Delivery is fire-and-forget
// from the caller's point of view: failures are logged and never fail an
// authentication flow.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/rs/zerolog/log"
)

// Template names a message layout.
type Template string

const (
	TemplateVerifyEmail     Template = "verify_email"
	TemplatePasswordReset   Template = "password_reset"
	TemplatePasswordChanged Template = "password_changed"
	TemplateWelcomeAdmin    Template = "welcome_admin"
)

// Notifier sends a templated message to recipient.
type Notifier interface {
	Send(ctx context.Context, tmpl Template, recipient string, params map[string]string) error
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

type layout struct {
	subject string
	body    *template.Template
}

var layouts = map[Template]layout{
	TemplateVerifyEmail: {
		subject: "Verify your email address",
		body: mustParse("verify",
			"Hello {{.username}},\n\n" +
				"Please confirm your email address by opening the link below:\n\n" +
				"{{.link}}\n\n" +
				"The link expires in {{.expires}}.\n"),
	},
	TemplatePasswordReset: {
		subject: "Reset your password",
		body: mustParse("reset",
			"Hello {{.username}},\n\n" +
				"We received a request to reset your password. Use the link below to choose a new one:\n\n" +
				"{{.link}}\n\n" +
				"The link expires in {{.expires}}. If you did not request this, you can ignore this email.\n"),
	},
	TemplatePasswordChanged: {
		subject: "Your password was changed",
		body: mustParse("changed",
			"Hello {{.username}},\n\n" +
				"The password of your account was changed and every active session was signed out.\n" +
				"If this was not you, reset your password immediately.\n"),
	},
	TemplateWelcomeAdmin: {
		subject: "You were granted administrative access",
		body: mustParse("admin",
			"Hello {{.username}},\n\n" +
				"You now have the {{.role}} role.\n"),
	},
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Parse(text))
}

// Render builds the message for tmpl. Missing params render as empty strings.
func Render(tmpl Template, recipient string, params map[string]string) (*Message, error) {
	l, ok := layouts[tmpl]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", tmpl)
	}

	var body bytes.Buffer
	if err := l.body.Execute(&body, params); err != nil {
		return nil, fmt.Errorf("render %s: %w", tmpl, err)
	}
	return &Message{To: recipient, Subject: l.subject, Body: body.String()}, nil
}

// LogNotifier writes messages to the log instead of sending them. It is used
// when no SMTP host is configured.
type LogNotifier struct{}

// Send logs the rendered message.
func (LogNotifier) Send(_ context.Context, tmpl Template, recipient string, params map[string]string) error {
	msg, err := Render(tmpl, recipient, params)
	if err != nil {
		return err
	}
	log.Info().
		Str("template", string(tmpl)).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("Email delivery disabled, message not sent")
	return nil
}
