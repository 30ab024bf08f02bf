package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/ledger"
)

// DestroyOptions holds flags for the destroy command.
type DestroyOptions struct {
	EditOptions
	Policy string
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DestroyOptions{EditOptions: EditOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "destroy <type/id>",
		Short: "Destroy an entity and clear references to it",
		Long: `Mark an entity deleted and record a destroy edit.

With --policy clear (the default) every live entity that references the
destroyed one has the reference cleared, each as a child edit of the
destroy. Undoing the destroy restores them. With --policy restrict the
destroy is refused while any reference exists.

Example:
  editledger destroy organization/7 --actor alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDestroy(opts, args[0], cmd)
		},
	}

	addActorFlag(cmd, &opts.Actor)
	cmd.Flags().StringVar(&opts.Policy, "policy", string(ledger.CascadeClear), "what to do with references (clear|restrict)")
	return cmd
}

func runDestroy(opts *DestroyOptions, target string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	policy := ledger.CascadePolicy(opts.Policy)
	if policy != ledger.CascadeClear && policy != ledger.CascadeRestrict {
		msg := fmt.Sprintf("invalid policy %q: must be clear or restrict", opts.Policy)
		_ = formatter.Error("E_ARGS", msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	ref, err := parseRef(formatter, target)
	if err != nil {
		return err
	}

	l, st, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := l.RecordDestruction(context.Background(), ref, ir.ActorRef(opts.Actor), policy)
	if err != nil {
		return reportLedgerError(formatter, "destroy", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(newCascadeOutput(res.Destroy, &res))
	}
	fmt.Fprintf(formatter.Writer, "✓ destroyed %s (edit %s)\n", ref, res.Destroy.ID)
	writeCascade(formatter, &res)
	return nil
}
