package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/danpasecinic/podfleet/internal/config"
	"github.com/danpasecinic/podfleet/internal/journal"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past apply runs",
	Long: `List recent apply runs from the journal, one line per resource.

Only the postgres journal outlives a single command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		if cfg.JournalType != config.JournalPostgres {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: journal_type is %s, set journal_type: postgres to keep history\n", cfg.JournalType)
		}

		j, err := journal.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer func() { _ = j.Close() }()

		batches, err := j.List(historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list batches: %w", err)
		}

		if len(batches) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No batches recorded.")
			return nil
		}

		printHistory(cmd.OutOrStdout(), batches)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 10, "number of batches to show (0 for all)")
}

func printHistory(out io.Writer, batches []journal.Batch) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprint(w, "BATCH\tSTARTED\tCLUSTER\tRESOURCE\tNODE\tPHASE\tMESSAGE\n")

	for _, b := range batches {
		batchID := b.ID
		if len(batchID) > 8 {
			batchID = batchID[:8]
		}
		started := b.StartedAt.UTC().Format(time.RFC3339)

		if len(b.Entries) == 0 {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\t-\t-\n", batchID, started, b.Cluster)
			continue
		}

		for _, e := range b.Entries {
			node := e.Node
			if node == "" {
				node = "-"
			}
			_, _ = fmt.Fprintf(
				w, "%s\t%s\t%s\t%s/%s/%s\t%s\t%s\t%s\n",
				batchID,
				started,
				b.Cluster,
				e.Kind, e.Namespace, e.Name,
				node,
				e.Phase,
				e.Message,
			)
		}
	}

	_ = w.Flush()
}
