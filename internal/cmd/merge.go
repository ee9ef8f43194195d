package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
	"github.com/joseph-ayodele/clinicalgraph/internal/report"
	"github.com/joseph-ayodele/clinicalgraph/internal/utils"
)

func newMergeCmd(a *app) *cobra.Command {
	var reportPath string
	c := &cobra.Command{
		Use:   "merge [fragment.json ...]",
		Short: "Merge fragments into the graph store",
		Long: `Merge fragment files into the configured graph store. With no arguments
every patient_*_graph.json below the output directory is merged.

Merging is idempotent: re-merging a fragment leaves the graph unchanged.
Edges whose endpoint is missing are skipped and listed as dangling references.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, release, err := OpenGraphStore(ctx, a.cfg.Graph, a.deps())
			if err != nil {
				return err
			}
			defer release()

			p := NewPipeline(a.cfg, nil, store, a.deps())
			rep, err := p.Merge(ctx, args)
			if err != nil {
				return err
			}
			printMergeReport(cmd.OutOrStdout(), rep)

			if st, err := store.Stats(ctx); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "graph: %d entities, %d relationships\n", st.Entities, st.Relationships)
			}

			if reportPath != "" {
				b, err := report.NewService(a.logger).MergeXLSX(rep)
				if err != nil {
					return err
				}
				if err := utils.WriteFileAtomic(reportPath, b, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "report: %s\n", reportPath)
			}
			if rep.Failed > 0 {
				return fmt.Errorf("%d fragment(s) failed to merge", rep.Failed)
			}
			return nil
		},
	}
	c.Flags().StringVar(&reportPath, "report", "", "write an XLSX merge report to this path")
	c.Flags().Int("merge-workers", 0, "fragments merged concurrently (default from config)")
	_ = a.v.BindPFlag("graph.merge_workers", c.Flags().Lookup("merge-workers"))
	return c
}

func printMergeReport(w io.Writer, rep graph.MergeReport) {
	fmt.Fprintf(w, "merged %d fragment(s): %d nodes, %d edges, %d dangling, %d failed in %s\n",
		len(rep.Fragments), rep.Nodes, rep.Edges, rep.Dangling, rep.Failed, rep.Elapsed.Round(time.Millisecond))
	for _, fr := range rep.Fragments {
		for _, d := range fr.Dangling {
			fmt.Fprintf(w, "  dangling %s\n", d)
		}
		if fr.Err != "" {
			fmt.Fprintf(w, "  failed %s: %s\n", fr.FragmentID, fr.Err)
		}
	}
}
