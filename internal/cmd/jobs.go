package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/clinicalgraph/constants"
	"github.com/joseph-ayodele/clinicalgraph/internal/jobs"
)

func newJobsCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and maintain the job queue",
	}
	c.AddCommand(newJobsSyncCmd(a), newJobsRequeueCmd(a), newJobsListCmd(a))
	return c
}

func newJobsSyncCmd(a *app) *cobra.Command {
	var prune bool
	c := &cobra.Command{
		Use:   "sync",
		Short: "Queue a pending job for every new case note",
		Long: `Scan the notes directory for .txt and .pdf case notes and append a pending
job for each note not yet queued. The job id comes from the File<N> pattern in
the file name, or the file stem.

Jobs whose note disappeared are reported; --prune removes them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := NewPipeline(a.cfg, nil, nil, a.deps())
			p.Prune = prune
			res, err := p.SyncJobs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "jobs: %d (added %d, orphans %d, conflicts %d)\n",
				len(res.Jobs), len(res.Added), len(res.Orphans), len(res.Conflicts))
			for _, c := range res.Conflicts {
				fmt.Fprintf(out, "conflict: job_id %s for %s already used by %s\n", c.JobID, c.SourcePath, c.Existing)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&prune, "prune", false, "drop jobs whose note no longer exists")
	return c
}

func newJobsRequeueCmd(a *app) *cobra.Command {
	var (
		statuses []string
		ids      []string
	)
	c := &cobra.Command{
		Use:   "requeue",
		Short: "Reset failed jobs to pending",
		Long: `Reset failed jobs to pending so the next extract run retries them.

With no --status every failed_* job matches. --id restricts the match to the
given job ids. Completed jobs are only reset when --status completed is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			want, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			p := NewPipeline(a.cfg, nil, nil, a.deps())
			list, err := p.LoadJobs()
			if err != nil {
				return err
			}
			n := jobs.Requeue(list, want, ids)
			if n > 0 {
				if err := p.Jobs.Save(list); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d job(s)\n", n)
			return nil
		},
	}
	c.Flags().StringSliceVar(&statuses, "status", nil, "statuses to reset (repeatable)")
	c.Flags().StringSliceVar(&ids, "id", nil, "job ids to reset (repeatable)")
	return c
}

type jobView struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	SourcePath  string `json:"source_path"`
	OutputPath  string `json:"output_path,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

func newJobsListCmd(a *app) *cobra.Command {
	var (
		statuses   []string
		jsonOutput bool
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs and per-status counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			want, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			match := map[constants.JobStatus]bool{}
			for _, s := range want {
				match[s] = true
			}

			p := NewPipeline(a.cfg, nil, nil, a.deps())
			list, err := p.LoadJobs()
			if err != nil {
				return err
			}

			views := make([]jobView, 0, len(list))
			for _, j := range list {
				if len(match) > 0 && !match[j.Status] {
					continue
				}
				v := jobView{JobID: j.JobID, Status: string(j.Status), SourcePath: j.SourcePath, OutputPath: j.OutputPath, LastError: j.LastError}
				if !j.LastUpdated.IsZero() {
					v.LastUpdated = j.LastUpdated.UTC().Format(time.RFC3339)
				}
				views = append(views, v)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB_ID\tSTATUS\tSOURCE\tLAST_UPDATED")
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.JobID, v.Status, v.SourcePath, v.LastUpdated)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			counts := jobs.Counts(list)
			for _, s := range constants.AllStatuses {
				if counts[s] > 0 {
					fmt.Fprintf(out, "%s=%d ", s, counts[s])
				}
			}
			fmt.Fprintf(out, "total=%d\n", len(list))
			return nil
		},
	}
	c.Flags().StringSliceVar(&statuses, "status", nil, "only show these statuses")
	c.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return c
}

func parseStatuses(in []string) ([]constants.JobStatus, error) {
	out := make([]constants.JobStatus, 0, len(in))
	for _, s := range in {
		st, ok := constants.ParseJobStatus(s)
		if !ok || s == "" {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		out = append(out, st)
	}
	return out, nil
}
