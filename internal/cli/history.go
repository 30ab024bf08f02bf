package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit  int
	Offset int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <type/id>",
		Short: "List the edits of an entity, oldest first",
		Example: `  editledger history project/42
  editledger history project/42 --limit 10 --offset 10 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum edits to list (0 = all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "edits to skip")
	return cmd
}

func runHistory(opts *HistoryOptions, target string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ref, err := parseRef(formatter, target)
	if err != nil {
		return err
	}

	l, st, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer st.Close()

	edits, err := l.History(context.Background(), ref, store.Page{Limit: opts.Limit, Offset: opts.Offset})
	if err != nil {
		return reportLedgerError(formatter, "history", err)
	}

	if formatter.Format == "json" {
		records := make([]ir.Record, 0, len(edits))
		for _, e := range edits {
			records = append(records, ir.Flatten(e))
		}
		return formatter.Success(records)
	}

	if len(edits) == 0 {
		fmt.Fprintf(formatter.Writer, "No edits for %s.\n", ref)
		return nil
	}
	for _, e := range edits {
		h := e.Head()
		fmt.Fprintf(formatter.Writer, "%s  %s  %s\n", h.Timestamp.Format("2006-01-02T15:04:05Z07:00"), h.ID, ir.Describe(e))
	}
	return nil
}
