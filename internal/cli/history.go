package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		failed bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync runs from the journal",
		Long: `List recent sync runs recorded in the local journal.

With --failed, list the documents that failed in the latest run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()

			if failed {
				run, err := j.Latest(ctx)
				if err != nil {
					return err
				}
				docs, err := j.Failed(ctx, run.ID)
				if err != nil {
					return err
				}
				if len(docs) == 0 {
					fmt.Fprintf(w, "No failed documents in run %s\n", run.ID)
					return nil
				}
				fmt.Fprintln(w, "NAME\tPATH\tKIND\tREASON")
				for _, d := range docs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.DisplayName, d.Path, d.Kind, d.Reason)
				}
				return nil
			}

			runs, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded yet")
				return nil
			}
			fmt.Fprintln(w, "STARTED\tSTORE\tEXISTING\tUPLOADED\tSUCCEEDED\tFAILED\tDURATION")
			for _, r := range runs {
				uploaded := fmt.Sprint(r.Submitted)
				if r.DryRun {
					uploaded += " (dry run)"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.StoreName, r.Existing, uploaded,
					r.Succeeded, r.Failed, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	cmd.Flags().BoolVar(&failed, "failed", false, "list failed documents of the latest run")
	return cmd
}
