package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
)

// NewTokenCmd mints a bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a development bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			authn, err := auth.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))
			if err != nil {
				return err
			}
			token, err := authn.Issue(args[0], name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	return cmd
}
