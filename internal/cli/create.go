package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/editledger/internal/ir"
)

// EditOptions holds flags shared by commands that write to the ledger.
type EditOptions struct {
	*RootOptions
	Actor string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <type/id>",
		Short: "Record that an entity was created",
		Long: `Create a live entity and record a create edit for it.

An entity id can be created once. Creating it again, even after it was
destroyed, is refused.

Example:
  editledger create project/42 --actor alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], cmd)
		},
	}

	addActorFlag(cmd, &opts.Actor)
	return cmd
}

func runCreate(opts *EditOptions, target string, cmd *cobra.Command) error {
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

	edit, err := l.RecordCreation(context.Background(), ref, ir.ActorRef(opts.Actor))
	if err != nil {
		return reportLedgerError(formatter, "create", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ir.Flatten(edit))
	}
	fmt.Fprintf(formatter.Writer, "✓ created %s (edit %s)\n", ref, edit.ID)
	return nil
}

// addActorFlag registers the required --actor flag.
func addActorFlag(cmd *cobra.Command, actor *string) {
	cmd.Flags().StringVar(actor, "actor", "", "who is making the change (required)")
	_ = cmd.MarkFlagRequired("actor")
}

// parseRef parses a "type/id" argument.
func parseRef(formatter *OutputFormatter, s string) (ir.EntityRef, error) {
	ref, err := ir.ParseEntityRef(s)
	if err != nil {
		_ = formatter.Error("E_ARGS", err.Error(), nil)
		return ir.EntityRef{}, WrapExitError(ExitCommandError, "invalid argument", err)
	}
	return ref, nil
}
