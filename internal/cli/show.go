package cli

import (
	"context"
	"fmt"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"github.com/roach88/editledger/internal/ir"
)

// ShowOutput is the JSON payload of the show command.
type ShowOutput struct {
	Edit     ir.Record   `json:"edit"`
	Children []ir.Record `json:"children,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <edit-id>",
		Short: "Show one edit and its cascade children",
		Long: `Show a recorded edit. For a destroy, the reference-clearing child
edits are listed too. With --verbose the full edit structs are dumped.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, editID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	l, st, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	edit, err := l.Edit(ctx, editID)
	if err != nil {
		return reportLedgerError(formatter, "show", err)
	}
	var children []*ir.PropertyEdit
	if edit.Kind() == ir.KindDestroy {
		children, err = l.Children(ctx, editID)
		if err != nil {
			return reportLedgerError(formatter, "show", err)
		}
	}

	if formatter.Format == "json" {
		out := ShowOutput{Edit: ir.Flatten(edit)}
		for _, c := range children {
			out.Children = append(out.Children, ir.Flatten(c))
		}
		return formatter.Success(out)
	}

	w := formatter.Writer
	if opts.Verbose {
		dump := litter.Options{HidePrivateFields: true, Compact: false}
		fmt.Fprintln(w, dump.Sdump(edit))
		for _, c := range children {
			fmt.Fprintln(w, dump.Sdump(c))
		}
		return nil
	}

	h := edit.Head()
	fmt.Fprintf(w, "%s\n", h.ID)
	fmt.Fprintf(w, "  %s\n", ir.Describe(edit))
	fmt.Fprintf(w, "  at %s\n", h.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	if h.ParentID != "" {
		fmt.Fprintf(w, "  parent %s\n", h.ParentID)
	}
	for _, c := range children {
		fmt.Fprintf(w, "  child %s  %s\n", c.ID, ir.Describe(c))
	}
	return nil
}
