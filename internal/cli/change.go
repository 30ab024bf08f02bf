package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/ledger"
)

// ChangeOptions holds flags for the change command.
type ChangeOptions struct {
	EditOptions
	Clear bool // set the attribute to null
}

// ChangeOutput is the JSON payload of the change command.
type ChangeOutput struct {
	Outcome ledger.Outcome `json:"outcome"`
	Edit    *ir.Record     `json:"edit,omitempty"`
}

// NewChangeCommand creates the change command.
func NewChangeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChangeOptions{EditOptions: EditOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "change <type/id> <key> [value]",
		Short: "Change one attribute of an entity",
		Long: `Set an attribute and record the change.

A change by the same actor to the same attribute within the type's merge
window amends the latest edit instead of adding a new one. Setting the
current value again records nothing.

Values that parse as integers or booleans are stored as such; anything
else is a string. Use --clear to set the attribute to null.

Examples:
  editledger change project/42 name "Open Hub" --actor alice
  editledger change project/42 organization_id 7 --actor alice
  editledger change project/42 description --clear --actor alice`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange(opts, args, cmd)
		},
	}

	addActorFlag(cmd, &opts.Actor)
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "set the attribute to null")
	return cmd
}

func runChange(opts *ChangeOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var value ir.Value = ir.Null{}
	switch {
	case opts.Clear && len(args) == 3:
		_ = formatter.Error("E_ARGS", "--clear takes no value", nil)
		return NewExitError(ExitCommandError, "--clear takes no value")
	case !opts.Clear && len(args) == 2:
		_ = formatter.Error("E_ARGS", "a value or --clear is required", nil)
		return NewExitError(ExitCommandError, "a value or --clear is required")
	case len(args) == 3:
		value = ir.ParseText(args[2])
	}

	ref, err := parseRef(formatter, args[0])
	if err != nil {
		return err
	}
	key := args[1]

	l, st, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := l.RecordChange(context.Background(), ref, ir.ActorRef(opts.Actor), key, value)
	if err != nil {
		return reportLedgerError(formatter, "change", err)
	}

	if formatter.Format == "json" {
		out := ChangeOutput{Outcome: res.Outcome}
		if res.Edit != nil {
			rec := ir.Flatten(res.Edit)
			out.Edit = &rec
		}
		return formatter.Success(out)
	}

	switch res.Outcome {
	case ledger.OutcomeNoop:
		fmt.Fprintf(formatter.Writer, "= %s.%s unchanged\n", ref, key)
	default:
		fmt.Fprintf(formatter.Writer, "✓ %s %s\n", res.Outcome, res.Edit.ID)
		formatter.VerboseLog("%s", ir.Describe(res.Edit))
	}
	return nil
}
