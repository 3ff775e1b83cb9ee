// Package cli implements authctl, the operator tool for the auth service.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute creates the root command tree and runs it.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "authctl",
		Short: "Operate the GTD auth service",
		Long: `authctl runs database migrations and bootstraps superadmin accounts.

Configuration is read from the same environment variables (and .env file)
as the API server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newCreateSuperadminCmd())
	cmd.AddCommand(newGenSecretCmd())

	return cmd
}
