package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jlehrer1/big-csv/pkg/types"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded transpose runs",
	}
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger()
			if err != nil {
				return err
			}
			defer ledger.Detach()

			runs, err := ledger.ListRuns()
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if state != "" {
				filtered := runs[:0]
				for _, r := range runs {
					if r.State == state {
						filtered = append(filtered, r)
					}
				}
				runs = filtered
			}

			if flags.jsonMode {
				if runs == nil {
					runs = []*types.Run{}
				}
				return printJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATE\tROWS\tCHUNKS\tSTARTED\tOUTPUT")
			fmt.Fprintln(w, "------\t-----\t----\t------\t-------\t------")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					r.RunID, r.State, r.Plan.TotalRows, r.Plan.NumChunks,
					r.StartedAt.Local().Format(time.DateTime), r.Output)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "only show runs in this state")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and the chunks it wrote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger()
			if err != nil {
				return err
			}
			defer ledger.Detach()

			run, err := ledger.GetRun(args[0])
			if err != nil {
				return fmt.Errorf("get run %s: %w", args[0], err)
			}
			chunks, err := ledger.Chunks(run.RunID)
			if err != nil {
				return fmt.Errorf("get chunks: %w", err)
			}

			if flags.jsonMode {
				if chunks == nil {
					chunks = []types.ChunkRecord{}
				}
				return printJSON(cmd.OutOrStdout(), struct {
					*types.Run
					Chunks []types.ChunkRecord `json:"chunks"`
				}{run, chunks})
			}
			printRun(cmd, run, chunks)
			return nil
		},
	}
}

func printRun(cmd *cobra.Command, run *types.Run, chunks []types.ChunkRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", run.RunID)
	fmt.Fprintf(out, "State:     %s\n", run.State)
	fmt.Fprintf(out, "Source:    %s\n", run.Source)
	fmt.Fprintf(out, "Output:    %s\n", run.Output)
	fmt.Fprintf(out, "Chunk dir: %s\n", run.ChunkDir)
	fmt.Fprintf(out, "Plan:      %d rows, %d chunks of %d\n", run.Plan.TotalRows, run.Plan.NumChunks, run.Plan.ChunkSize)
	fmt.Fprintf(out, "Started:   %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:  %s (%s)\n", run.FinishedAt.Local().Format(time.DateTime),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", run.Error)
	}
	if len(chunks) == 0 {
		return
	}

	fmt.Fprintf(out, "\nChunks (%d of %d):\n", len(chunks), run.Plan.NumChunks)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tROWS\tCOLS\tPATH")
	fmt.Fprintln(w, "-----\t----\t----\t----")
	for _, c := range chunks {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", c.Index, c.Rows, c.Cols, c.Path)
	}
	w.Flush()
	if _, err := os.Stat(run.ChunkDir); err == nil && run.State == types.RunStateFailed {
		fmt.Fprintf(out, "\nChunk files kept in %s\n", run.ChunkDir)
	}
}
