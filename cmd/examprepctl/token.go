package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/examprep/practice-api/internal/auth"
)

// newTokenCmd mints session tokens for local development. Production
// tokens come from the identity provider.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token signed with AUTH_TOKEN_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if user == "" {
				return fmt.Errorf("--user is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Auth.TokenSecret) < 32 {
				return fmt.Errorf("AUTH_TOKEN_SECRET must be at least 32 characters")
			}

			v := auth.NewVerifier(cfg.Auth.TokenSecret, cfg.Auth.Issuer, cfg.Auth.AdminRole)
			token, err := v.Issue(user, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User id placed in the subject claim")
	cmd.Flags().String("role", "", "Role claim, e.g. the configured admin role")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
