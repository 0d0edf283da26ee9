package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lhecker/tumblr-backup/config"
)

// configKeyCmd implements spec.md §6's "dedicated subcommand" for
// persisting the v2 API's oauth_consumer_key to the per-user config file.
var configKeyCmd = &cobra.Command{
	Use:   "config-key <oauth_consumer_key>",
	Short: "Save the Tumblr API key used by every subsequent backup run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveAPIKey(args[0]); err != nil {
			return fmt.Errorf("saving api key: %w", err)
		}
		fmt.Println("api key saved")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configKeyCmd)
}
