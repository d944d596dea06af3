package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-orchestrator/internal/auth"
	"github.com/spec-kit/ticket-orchestrator/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for calling the API when auth is enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("AUTH_JWT_SECRET must be set to mint tokens")
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(subject, role)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(out, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "actor recorded in ticket history")
	cmd.Flags().StringVarP(&role, "role", "r", "", "optional role claim")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
