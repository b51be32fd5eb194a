package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nfrund/gobychat/internal/config"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the environment and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			rows := [][2]string{
				{"server addr", cfg.ServerAddr},
				{"environment", cfg.AppEnv},
				{"storage", cfg.StorageBackend},
				{"redis", orNone(cfg.RedisAddr)},
				{"session ttl", cfg.SessionTTL.String()},
				{"ws send buffer", fmt.Sprint(cfg.WSSendBuffer)},
				{"max payload bytes", fmt.Sprint(cfg.MaxPayloadBytes)},
				{"tracing", fmt.Sprint(cfg.TracingEnabled)},
			}
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\n", r[0], r[1])
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
