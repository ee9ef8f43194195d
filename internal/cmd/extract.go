package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/joseph-ayodele/clinicalgraph/internal/queue"
)

func newExtractCmd(a *app) *cobra.Command {
	var pendingOnly bool
	c := &cobra.Command{
		Use:   "extract",
		Short: "Process the job queue into graph fragments",
		Long: `Run every job that is not completed through the extraction model and
write one fragment per successful job. The queue file is checkpointed every
--checkpoint-every finished jobs and once more at the end, so an interrupted
run (Ctrl-C) resumes from the last checkpoint.

Failed jobs are retried on the next run unless --pending-only is set; use
"kgx jobs requeue" to reset selected failures explicitly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := NewProvider(a.cfg.LLM, a.deps())
			if err != nil {
				return err
			}
			p := NewPipeline(a.cfg, provider, nil, a.deps(), queue.WithPendingOnly(pendingOnly))
			sum, err := p.Extract(cmd.Context())
			printSummary(cmd.OutOrStdout(), sum)
			return err
		},
	}
	f := c.Flags()
	f.Int("workers", 0, "concurrent extraction calls (default from config)")
	f.Int("checkpoint-every", 0, "checkpoint the queue after this many finished jobs")
	f.BoolVar(&pendingOnly, "pending-only", false, "leave failed jobs untouched")
	_ = a.v.BindPFlag("queue.workers", f.Lookup("workers"))
	_ = a.v.BindPFlag("queue.checkpoint_every", f.Lookup("checkpoint-every"))
	return c
}

func printSummary(w io.Writer, sum queue.Summary) {
	fmt.Fprintf(w, "run %s: %d jobs, %d processed, %d skipped, %d checkpoints in %s\n",
		sum.RunID, sum.Total, sum.Processed, sum.Skipped, sum.Checkpoints, sum.Elapsed.Round(time.Millisecond))
	for _, s := range constants.AllStatuses {
		if n := sum.ByStatus[s]; n > 0 {
			fmt.Fprintf(w, "  %-15s %d\n", s, n)
		}
	}
	if sum.Interrupted {
		fmt.Fprintln(w, "interrupted: progress up to the last checkpoint is saved")
	}
}
