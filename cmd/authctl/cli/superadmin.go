package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/config"
	"github.com/GTDGit/gtd_auth/internal/database"
	"github.com/GTDGit/gtd_auth/internal/notify"
	"github.com/GTDGit/gtd_auth/internal/repository"
	"github.com/GTDGit/gtd_auth/internal/service"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

func newCreateSuperadminCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create-superadmin",
		Short: "Create a superadmin, or promote an existing user to superadmin",
		Example: `  authctl create-superadmin --username root --email root@example.com  # prompts for password
  authctl create-superadmin --username alice                            # promotes an existing user`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreateSuperadmin(cmd, username, email, password)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username of the superadmin (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address, required when the user does not exist")
	cmd.Flags().StringVar(&password, "password", "", "Password for a new user (prompted if omitted)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func runCreateSuperadmin(cmd *cobra.Command, username, email, password string) error {
	cfg, err := config.Load()
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "load configuration").Wrap(err)
	}

	db, err := database.Connect(&cfg.DB)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	users := repository.NewUserRepository(db)
	ctx := cmd.Context()

	// A password is only needed when a new user is created.
	if _, err := users.GetByIdentity(ctx, utils.NormalizeUsername(username)); errors.Is(err, utils.ErrNotFound) {
		if email == "" {
			return oops.Code("INVALID_INPUT").Errorf("user %q does not exist; --email is required to create it", username)
		}
		if password == "" {
			if password, err = promptPassword(); err != nil {
				return err
			}
		}
	} else if err != nil {
		return oops.Code("DB_QUERY_FAILED").With("username", username).Wrap(err)
	}

	deps := service.AuthDeps{
		Users:    users,
		Admins:   repository.NewAdminRepository(db),
		Audit:    repository.NewAuditLogRepository(db),
		Policy:   auth.NewPasswordPolicy(cfg.Password),
		Hasher:   auth.NewArgon2idHasher(cfg.Hasher),
		Notifier: notify.LogNotifier{},
	}

	user, admin, err := service.BootstrapSuperadmin(ctx, deps, service.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	var weak *utils.WeakPasswordError
	switch {
	case errors.As(err, &weak):
		return oops.Code("WEAK_PASSWORD").With("reasons", weak.Reasons).Errorf("password rejected: %v", weak)
	case errors.Is(err, utils.ErrAlreadyAdmin):
		cmd.Printf("User %q is already a superadmin\n", user.Username)
		return nil
	case err != nil:
		return oops.Code("BOOTSTRAP_FAILED").With("username", username).Wrap(err)
	}

	cmd.Printf("User %q (%s) is now a superadmin\n", user.Username, user.ID)
	cmd.Printf("  permissions: %v\n", admin.Permissions)
	return nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", oops.Code("INVALID_INPUT").Errorf("stdin is not a terminal; pass --password")
	}

	fmt.Print("Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", oops.Code("PROMPT_FAILED").Wrap(err)
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", oops.Code("PROMPT_FAILED").Wrap(err)
	}

	if string(pw) != string(confirm) {
		return "", oops.Code("INVALID_INPUT").Errorf("passwords do not match")
	}
	return string(pw), nil
}
