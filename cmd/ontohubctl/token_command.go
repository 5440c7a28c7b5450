package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ontohub/internal/platform/auth"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var operator string
	var scopes []string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if operator == "" {
				return errors.New("--operator is required")
			}

			jwtCfg := cfg.JWT
			if ttl > 0 {
				jwtCfg.AccessTokenTTL = ttl
			}
			token, err := auth.NewTokenService(jwtCfg).GenerateAccessToken(operator, scopes)
			if errors.Is(err, auth.ErrAuthDisabled) {
				return errors.New("jwt.secret is not configured, authentication is disabled")
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "Operator name recorded in audit entries")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes granted to the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to jwt.access_token_ttl)")
	return cmd
}
