package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/testerman-project/testerman-core/internal/job"
	"github.com/testerman-project/testerman-core/internal/wsapi"
)

var (
	submitType     string
	submitName     string
	submitPath     string
	submitUsername string
	submitAt       string
	submitSession  []string
	submitMapping  []string
	submitGroups   []string
)

// submitCmd submits an ATS or campaign source file to the Server Ws
// façade.
var submitCmd = &cobra.Command{
	Use:   "submit <source-file>",
	Short: "submit an ATS or campaign source file as a new job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		source, err := os.ReadFile(args[0])
		if err != nil {
			fatal(fmt.Errorf("reading source file: %w", err))
		}

		req := wsapi.SubmitRequest{
			Type:     job.Type(submitType),
			Name:     submitName,
			Source:   string(source),
			Path:     submitPath,
			Username: submitUsername,
			Session:  parseKV(submitSession),
			Mapping:  parseKV(submitMapping),
			Groups:   submitGroups,
		}
		if submitAt != "" {
			at, err := time.Parse(time.RFC3339, submitAt)
			if err != nil {
				fatal(fmt.Errorf("--at: %w", err))
			}
			req.ScheduledAt = &at
		}

		resp, err := client().submit(req)
		if err != nil {
			fatal(err)
		}
		fmt.Println(resp.JobID)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitType, "type", string(job.TypeATS), "job type: ats or campaign")
	submitCmd.Flags().StringVar(&submitName, "name", "", "human-readable job name")
	submitCmd.Flags().StringVar(&submitPath, "path", "", "source path within the repository")
	submitCmd.Flags().StringVar(&submitUsername, "username", "", "owning username")
	submitCmd.Flags().StringVar(&submitAt, "at", "", "scheduled start time, RFC3339 (default: now)")
	submitCmd.Flags().StringArrayVar(&submitSession, "session", nil, "input session binding name=value (repeatable)")
	submitCmd.Flags().StringArrayVar(&submitMapping, "mapping", nil, "session-parameter mapping name=expr (repeatable)")
	submitCmd.Flags().StringSliceVar(&submitGroups, "groups", nil, "test-case groups for a partial ATS run")
	submitCmd.MarkFlagRequired("name")
	submitCmd.MarkFlagRequired("path")
	submitCmd.MarkFlagRequired("username")
}

// parseKV turns a list of "name=value" strings into a map, skipping
// entries without an '='.
func parseKV(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
