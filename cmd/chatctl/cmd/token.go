package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/gobychat/internal/auth"
	"github.com/nfrund/gobychat/internal/config"
	"github.com/nfrund/gobychat/internal/domain"
)

func newTokenCmd() *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a session token for a user id",
		Long: `Mint a session token signed with JWT_SECRET. Useful for connecting a
WebSocket client by hand: ws://host/ws?token=<token>. The user must exist for
the server to accept the token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.SessionTTL
			}

			tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, ttl)
			token, err := tokens.Issue(domain.NewIdentity(args[0], name))
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name embedded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to SESSION_TTL)")
	return cmd
}
