package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/editledger/internal/store"
)

// VerifyResult is the JSON payload of the verify command.
type VerifyResult struct {
	Consistent  bool               `json:"consistent"`
	Divergences []store.Divergence `json:"divergences"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check live entity state against the ledger",
		Long: `Compare every tracked attribute with the newest edit recorded for it,
and every entity's lifecycle with its destroy edits.

Exit codes:
  0 - Live state matches the ledger
  1 - Divergences found
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	l, st, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer st.Close()

	divergences, err := l.Verify(context.Background())
	if err != nil {
		return reportLedgerError(formatter, "verify", err)
	}

	result := VerifyResult{Consistent: len(divergences) == 0, Divergences: divergences}
	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if result.Consistent {
		fmt.Fprintln(formatter.Writer, "✓ Ledger and live state agree")
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %d divergence(s)\n", len(divergences))
		for _, d := range divergences {
			fmt.Fprintf(formatter.Writer, "  %s\n", d)
		}
	}

	if !result.Consistent {
		return NewExitError(ExitFailure, fmt.Sprintf("%d divergence(s)", len(divergences)))
	}
	return nil
}
