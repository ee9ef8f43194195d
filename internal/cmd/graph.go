package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func newGraphCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "graph",
		Short: "Graph store maintenance",
	}

	var timeout time.Duration
	health := &cobra.Command{
		Use:   "health",
		Short: "Check the graph store is reachable and print its size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, release, err := OpenGraphStore(ctx, a.cfg.Graph, a.deps())
			if err != nil {
				return fmt.Errorf("graph health: FAIL (%w)", err)
			}
			defer release()

			if p, ok := store.(pinger); ok {
				pctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				if err := p.Ping(pctx); err != nil {
					return fmt.Errorf("graph health: FAIL (%w)", err)
				}
			}
			st, err := store.Stats(ctx)
			if err != nil {
				return fmt.Errorf("graph stats: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "graph health: OK (%s)\nentities: %d\nrelationships: %d\n",
				a.cfg.Graph.Backend, st.Entities, st.Relationships)
			return nil
		},
	}
	health.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "ping timeout")
	c.AddCommand(health)
	return c
}
