package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "fixlined",
		Short: "Fixline support chat server",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and WebSocket server",
			Run: func(cmd *cobra.Command, args []string) {
				runServe()
			},
		},
		newSetWebhookCommand(),
		newMigrateCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
