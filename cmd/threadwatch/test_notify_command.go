package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"threadwatch/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			svc := notifications.NewService(cfg)
			out := cmd.OutOrStdout()
			if !svc.Enabled() {
				fmt.Fprintln(out, "Notifications disabled; set notifications.ntfy_topic or THREADWATCH_NTFY_TOPIC")
				return nil
			}
			if err := notifications.TestNotification(cmd.Context(), svc); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
