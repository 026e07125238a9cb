package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// logCmd implements getJobLog.
var logCmd = &cobra.Command{
	Use:   "log <job-id>",
	Short: "print a job's XML log (getJobLog)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseJobID(args[0])
		content, err := client().jobLog(id)
		if err != nil {
			fatal(err)
		}
		os.Stdout.Write(content)
		fmt.Println()
	},
}
