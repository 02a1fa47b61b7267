package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd(root *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored pipeline runs, or the handlers of one run",
		Long: `Reads the run store (store.path). Without arguments, lists the most recent
runs. With a run ID, lists every handler of that run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, root)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if a.store == nil {
				return errors.New("no run store configured (set store.path or RESPIPE_STORE__PATH)")
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if len(args) == 1 {
				handlers, err := a.store.Handlers(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "PIPELINE\tHANDLER\tSTATUS\tDURATION\tERROR")
				for _, h := range handlers {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", h.Pipeline, h.Index, h.Status, h.Duration, h.Error)
				}
				return nil
			}

			runs, err := a.store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "RUN ID\tPIPELINE\tSTATUS\tSTARTED\tDURATION\tERROR")
			for _, r := range runs {
				var took time.Duration
				if !r.FinishedAt.IsZero() {
					took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.RunID, r.Pipeline, r.Status, r.StartedAt.Format(time.RFC3339), took, r.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}
