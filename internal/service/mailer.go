package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/notify"
)

// mailer builds links for emailed tokens and hands messages to the notifier.
// Delivery errors are logged only.
type mailer struct {
	notifier    notify.Notifier
	tokens      *auth.TokenService
	frontendURL string
}

func (m mailer) send(ctx context.Context, tmpl notify.Template, user *models.User, params map[string]string) {
	if params == nil {
		params = map[string]string{}
	}
	params["username"] = user.Username

	if err := m.notifier.Send(ctx, tmpl, user.Email, params); err != nil {
		log.Warn().Err(err).
			Str("template", string(tmpl)).
			Str("user_id", user.ID.String()).
			Msg("Failed to queue email")
	}
}

func (m mailer) link(path, token string) string {
	return strings.TrimSuffix(m.frontendURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// sendVerification issues an email verification token and mails it.
func (m mailer) sendVerification(ctx context.Context, user *models.User) {
	token, _, err := m.tokens.Issue(user.ID, user.TokenVersion, auth.TokenVerify)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to issue verification token")
		return
	}
	m.send(ctx, notify.TemplateVerifyEmail, user, map[string]string{
		"link":    m.link("/verify-email", token),
		"expires": m.tokens.TTL(auth.TokenVerify).String(),
	})
}
