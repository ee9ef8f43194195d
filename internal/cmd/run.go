package cmd

import (
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sync the queue, extract pending jobs, then merge every fragment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			provider, err := NewProvider(a.cfg.LLM, a.deps())
			if err != nil {
				return err
			}
			store, release, err := OpenGraphStore(ctx, a.cfg.Graph, a.deps())
			if err != nil {
				return err
			}
			defer release()

			res, err := NewPipeline(a.cfg, provider, store, a.deps()).RunOnce(ctx)
			out := cmd.OutOrStdout()
			printSummary(out, res.Extract)
			if err != nil {
				return err
			}
			printMergeReport(out, res.Merge)
			return nil
		},
	}
}
