package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/GTDGit/gtd_auth/internal/config"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// PasswordPolicy validates password strength before hashing.
type PasswordPolicy struct {
	cfg      config.PasswordConfig
	denylist map[string]struct{}
}

// NewPasswordPolicy builds a policy from thresholds.
func NewPasswordPolicy(cfg config.PasswordConfig) *PasswordPolicy {
	deny := make(map[string]struct{}, len(cfg.Denylist))
	for _, p := range cfg.Denylist {
		deny[strings.ToLower(p)] = struct{}{}
	}
	return &PasswordPolicy{cfg: cfg, denylist: deny}
}

// Validate returns nil or a *utils.WeakPasswordError listing every failed
// rule. identity holds fields the password must not equal, such as the
// username and email.
func (p *PasswordPolicy) Validate(password string, identity ...string) error {
	var reasons []string

	n := utf8.RuneCountInString(password)
	if n < p.cfg.MinLength {
		reasons = append(reasons, fmt.Sprintf("must be at least %d characters long", p.cfg.MinLength))
	}
	if p.cfg.MaxLength > 0 && n > p.cfg.MaxLength {
		reasons = append(reasons, fmt.Sprintf("must not exceed %d characters", p.cfg.MaxLength))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if p.cfg.RequireUpper && !upper {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if p.cfg.RequireLower && !lower {
		reasons = append(reasons, "must contain a lowercase letter")
	}
	if p.cfg.RequireDigit && !digit {
		reasons = append(reasons, "must contain a digit")
	}
	if p.cfg.RequireSymbol && !symbol {
		reasons = append(reasons, "must contain a special character")
	}

	lowered := strings.ToLower(password)
	if _, ok := p.denylist[lowered]; ok {
		reasons = append(reasons, "is too common")
	}
	for _, id := range identity {
		if matchesIdentity(lowered, id) {
			reasons = append(reasons, "must not match your username or email")
			break
		}
	}

	if len(reasons) > 0 {
		return &utils.WeakPasswordError{Reasons: reasons}
	}
	return nil
}

func matchesIdentity(lowered, identity string) bool {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return false
	}
	if lowered == identity {
		return true
	}
	local, _, found := strings.Cut(identity, "@")
	return found && local != "" && lowered == local
}
