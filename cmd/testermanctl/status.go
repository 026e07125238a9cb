package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// statusCmd implements getJobInfo.
var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "print a job's summary state (getJobInfo)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseJobID(args[0])
		info, err := client().jobInfo(id)
		if err != nil {
			fatal(err)
		}
		printJSON(info)
	},
}

// detailsCmd implements getJobDetails.
var detailsCmd = &cobra.Command{
	Use:   "details <job-id>",
	Short: "print a job's full detail record, including output session and children (getJobDetails)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseJobID(args[0])
		details, err := client().jobDetails(id)
		if err != nil {
			fatal(err)
		}
		printJSON(details)
	},
}

func parseJobID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fatal(fmt.Errorf("invalid job id %q: %w", s, err))
	}
	return id
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(b))
}
