package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kidandcat/taskmaster/internal/push"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.Database.Driver)
		return nil
	},
}

var checkDueCmd = &cobra.Command{
	Use:   "check-due",
	Short: "Run the reminder job once and print its summary",
	Long: `Run the reminder job once, the same pass GET /api/cron/check-due-tasks
performs, and print the JSON summary. Suitable for a system crontab:

  * * * * * taskmaster check-due --config /etc/taskmaster.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if a.job == nil {
			return errors.New("push.vapid_public_key and push.vapid_private_key are required")
		}

		summary := a.job.Run(cmd.Context())
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

var vapidKeysCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair",
	Long: `Generate a VAPID key pair for Web Push. Keep the private key secret and
keep both stable: rotating them invalidates every existing subscription.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pub, priv, err := push.GenerateKeys()
		if err != nil {
			return fmt.Errorf("generate keys: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "TASKMASTER_PUSH_VAPID_PUBLIC_KEY=%s\n", pub)
		fmt.Fprintf(out, "TASKMASTER_PUSH_VAPID_PRIVATE_KEY=%s\n", priv)
		return nil
	},
}
