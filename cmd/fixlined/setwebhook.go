package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fixline/fixline/internal/bridge/telegram"
	"github.com/fixline/fixline/internal/config"
	"github.com/fixline/fixline/internal/logging"
)

// newSetWebhookCommand registers the bot platform webhook so updates
// start flowing to /telegram/webhook.
func newSetWebhookCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Register the Telegram webhook for this deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			target := strings.TrimSpace(url)
			if target == "" {
				target = strings.TrimSpace(cfg.Telegram.WebhookURL)
			}
			if target == "" {
				return fmt.Errorf("webhook url required (flag --url or telegram.webhook_url in config)")
			}

			log := logging.New(cfg.Log.Level, cfg.Log.Format)
			adapter, err := telegram.New(log, cfg.Telegram, nil)
			if err != nil {
				return err
			}
			info, err := adapter.SetWebhook(target)
			if err != nil {
				return err
			}
			fmt.Printf("webhook set: url=%s pending=%d\n", info.URL, info.PendingUpdateCount)
			if info.LastErrorMessage != "" {
				fmt.Printf("last platform error: %s\n", info.LastErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "public webhook URL, e.g. https://host/telegram/webhook")
	return cmd
}
