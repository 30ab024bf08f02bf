package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/ledger"
)

// CascadeOutput is the JSON payload of destroy, undo, and redo.
type CascadeOutput struct {
	Edit     ir.Record       `json:"edit"`
	Children []ir.Record     `json:"children,omitempty"`
	Skipped  []SkippedOutput `json:"skipped,omitempty"`
}

// SkippedOutput is a cascade child that was left as it was.
type SkippedOutput struct {
	EditID string `json:"edit_id"`
	Reason string `json:"reason"`
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "undo <edit-id>",
		Short: "Undo a recorded edit",
		Long: `Revert the effect of an edit and mark it undone.

Only the newest edit to an attribute can be undone. Undoing a destroy
restores the entity and every reference the destroy cleared that has not
been changed since; the rest are reported as skipped.

Example:
  editledger undo 0192f0c4-7f7e-7c1a-9d55-3b1f4d2c6a10 --actor alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReverse(opts, args[0], true, cmd)
		},
	}

	addActorFlag(cmd, &opts.Actor)
	return cmd
}

// NewRedoCommand creates the redo command.
func NewRedoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "redo <edit-id>",
		Short: "Re-apply an undone edit",
		Long: `Re-apply an edit that was undone and mark it applied again.

Redo is refused when the attribute changed since the undo, or when the
type's redo guard rejects the current value.

Example:
  editledger redo 0192f0c4-7f7e-7c1a-9d55-3b1f4d2c6a10 --actor alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReverse(opts, args[0], false, cmd)
		},
	}

	addActorFlag(cmd, &opts.Actor)
	return cmd
}

func runReverse(opts *EditOptions, editID string, undo bool, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	l, st, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer st.Close()

	op, verb := "redo", "redone"
	reverse := l.Redo
	if undo {
		op, verb = "undo", "undone"
		reverse = l.Undo
	}

	res, err := reverse(context.Background(), editID, ir.ActorRef(opts.Actor))
	if err != nil {
		return reportLedgerError(formatter, op, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(newCascadeOutput(res.Edit, res.Cascade))
	}
	fmt.Fprintf(formatter.Writer, "✓ %s %s\n", verb, res.Edit.Head().ID)
	formatter.VerboseLog("%s", ir.Describe(res.Edit))
	writeCascade(formatter, res.Cascade)
	return nil
}

func newCascadeOutput(edit ir.Edit, c *ledger.CascadeResult) CascadeOutput {
	out := CascadeOutput{Edit: ir.Flatten(edit)}
	if c == nil {
		return out
	}
	for _, child := range c.Children {
		out.Children = append(out.Children, ir.Flatten(child))
	}
	for _, s := range c.Skipped {
		out.Skipped = append(out.Skipped, SkippedOutput{EditID: s.Edit.ID, Reason: s.Reason})
	}
	return out
}

// writeCascade lists the children a cascade touched and the ones it skipped.
func writeCascade(formatter *OutputFormatter, c *ledger.CascadeResult) {
	if c == nil {
		return
	}
	for _, child := range c.Children {
		fmt.Fprintf(formatter.Writer, "  %s %s.%s\n", child.ID, child.Target, child.Key)
	}
	for _, s := range c.Skipped {
		fmt.Fprintf(formatter.Writer, "  skipped %s %s.%s: %s\n", s.Edit.ID, s.Edit.Target, s.Edit.Key, s.Reason)
	}
}
