package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/editledger/internal/ir"
)

// EntityOutput is the JSON payload of the entity command.
type EntityOutput struct {
	Target     string           `json:"target"`
	Status     string           `json:"status"`
	Attributes map[string]any   `json:"attributes"`
	Counters   map[string]int64 `json:"counters,omitempty"`
}

// NewEntityCommand creates the entity command.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "entity <type/id>",
		Short:         "Show the live attributes and counters of an entity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntity(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runEntity(opts *RootOptions, target string, cmd *cobra.Command) error {
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

	ent, err := l.Entity(context.Background(), ref)
	if err != nil {
		return reportLedgerError(formatter, "entity", err)
	}

	if formatter.Format == "json" {
		out := EntityOutput{
			Target:     ref.String(),
			Status:     ent.Status.String(),
			Attributes: make(map[string]any, len(ent.Attributes)),
			Counters:   ent.Counters,
		}
		for k, v := range ent.Attributes {
			out.Attributes[k] = ir.JSONValue(v)
		}
		return formatter.Success(out)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s (%s)\n", ref, ent.Status)
	for _, k := range sortedKeys(ent.Attributes) {
		fmt.Fprintf(w, "  %s = %q\n", k, ir.Text(ent.Attributes[k]))
	}
	for _, k := range sortedKeys(ent.Counters) {
		fmt.Fprintf(w, "  %s: %d\n", k, ent.Counters[k])
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
