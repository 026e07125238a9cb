package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var purgeOlderThan time.Duration

// purgeCmd implements purge.
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "remove terminal job trees older than a threshold (purge)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := client().purge(purgeOlderThan)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("removed %d job(s)\n", resp.Removed)
	},
}

func init() {
	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 24*time.Hour, "purge terminal job trees whose stop time is older than this")
}

func parseRFC3339(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		fatal(fmt.Errorf("invalid RFC3339 time %q: %w", s, err))
	}
	return t
}
