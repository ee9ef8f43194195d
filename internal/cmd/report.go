package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/clinicalgraph/internal/report"
	"github.com/joseph-ayodele/clinicalgraph/internal/utils"
)

func newReportCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "report",
		Short: "Write spreadsheet reports",
	}

	var out string
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Write the job queue as an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := NewPipeline(a.cfg, nil, nil, a.deps())
			list, err := p.LoadJobs()
			if err != nil {
				return err
			}
			b, err := report.NewService(a.logger).JobsXLSX(list)
			if err != nil {
				return err
			}
			if err := utils.WriteFileAtomic(out, b, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report: %s (%d jobs)\n", out, len(list))
			return nil
		},
	}
	jobsCmd.Flags().StringVar(&out, "out", "jobs.xlsx", "output path")
	c.AddCommand(jobsCmd)
	return c
}
