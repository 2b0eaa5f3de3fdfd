package main

import (
	"errors"
	"fmt"
	"time"

	"call-relay/internal/auth"
	"call-relay/internal/config"
	"call-relay/internal/rbac"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var tokenRoles = []string{rbac.RoleUser, rbac.RoleAdmin, rbac.RoleService}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, userID, role)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token (required)")
	cmd.Flags().StringVar(&role, "role", rbac.RoleUser, "role: user, admin or service")
	return cmd
}

func runToken(cmd *cobra.Command, userID, role string) error {
	if userID == "" {
		return errors.New("--user is required")
	}
	if !lo.Contains(tokenRoles, role) {
		return fmt.Errorf("unknown role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.IsProduction() {
		return errors.New("token minting is disabled in production")
	}

	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}
	pair, err := m.IssuePair(time.Now(), userID, role)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), pair.AccessToken)
	return nil
}
