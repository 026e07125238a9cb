package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/testerman-project/testerman-core/internal/job"
)

// signalCmd implements sendSignal, accepting any of the five
// abstract signals the job subsystem understands.
var signalCmd = &cobra.Command{
	Use:   "signal <job-id> <pause|resume|cancel|kill|action-performed>",
	Short: "send a job-control signal (sendSignal)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseJobID(args[0])
		sig := job.Signal(args[1])
		switch sig {
		case job.SignalPause, job.SignalResume, job.SignalCancel, job.SignalKill, job.SignalActionPerformed:
		default:
			fatal(fmt.Errorf("unknown signal %q", args[1]))
		}
		if err := client().sendSignal(id, sig); err != nil {
			fatal(err)
		}
	},
}

// rescheduleCmd implements reschedule.
var rescheduleCmd = &cobra.Command{
	Use:   "reschedule <job-id> <RFC3339-time>",
	Short: "move a waiting job's scheduled start time (reschedule)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseJobID(args[0])
		at := parseRFC3339(args[1])
		if err := client().reschedule(id, at); err != nil {
			fatal(err)
		}
	},
}
