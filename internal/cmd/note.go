package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/clinicalgraph/internal/extract"
	"github.com/joseph-ayodele/clinicalgraph/internal/jobs"
	"github.com/joseph-ayodele/clinicalgraph/internal/notes"
)

func newNoteCmd(a *app) *cobra.Command {
	var jobID string
	c := &cobra.Command{
		Use:   "note <path>",
		Short: "Extract one case note and print the fragment without touching the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if jobID == "" {
				jobID = jobs.DeriveJobID(args[0])
			}

			note, err := notes.NewReader(notes.Config{}, a.logger).Read(ctx, args[0])
			if err != nil {
				return err
			}
			provider, err := NewProvider(a.cfg.LLM, a.deps())
			if err != nil {
				return err
			}
			inv := extract.NewInvoker(provider,
				extract.WithTimeout(a.cfg.LLM.Timeout),
				extract.WithTracer(a.tracer),
				extract.WithLogger(a.logger),
			)
			frag, err := inv.Extract(ctx, note.Text, extract.DeriveIdentifier(jobID))
			if err != nil {
				if kind, ok := extract.KindOf(err); ok {
					return fmt.Errorf("%s: %w", kind, err)
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(frag)
		},
	}
	c.Flags().StringVar(&jobID, "id", "", "job id (default derived from the file name)")
	return c
}
