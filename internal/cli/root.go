package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/editledger/internal/compiler"
	"github.com/roach88/editledger/internal/config"
	"github.com/roach88/editledger/internal/entity"
	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/ledger"
	"github.com/roach88/editledger/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Database   string
	TypesDir   string

	// Config and Logger are set by the root command before any subcommand
	// runs. Flags given on the command line override Config.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the editledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "editledger",
		Short: "editledger - audit trail and undo/redo for tracked entities",
		Long: `Record every attribute change to tracked entities, coalesce rapid
edits by the same actor, and undo or redo any recorded edit. Destroying an
entity clears references to it and can be undone as a unit.`,
		Version:       ir.EngineVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default: editledger.yaml in . or the user config dir)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.TypesDir, "types", "", "directory of CUE entity types (default: built-in types)")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewChangeCommand(opts))
	cmd.AddCommand(NewDestroyCommand(opts))
	cmd.AddCommand(NewUndoCommand(opts))
	cmd.AddCommand(NewRedoCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewEntityCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// load reads the config file and builds the logger. Flags that were set
// explicitly take precedence over the file and the environment.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cmd.Flags().Changed("db") {
		cfg.Database = o.Database
	}
	if cmd.Flags().Changed("types") {
		cfg.TypesDir = o.TypesDir
	}

	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Config = cfg
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if cfg.File != "" {
		o.Logger.Debug("loaded config", "file", cfg.File)
	}
	return nil
}

// registry builds the entity registry from the configured types directory,
// or from the built-in types when none is set.
func (o *RootOptions) registry() (*entity.Registry, error) {
	specs := entity.BuiltinTypes()
	if o.Config.TypesDir != "" {
		result, errs := compiler.LoadDir(o.Config.TypesDir, compiler.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, WrapExitError(ExitCommandError, "failed to load entity types", errs[0])
		}
		specs = result.Types
	}
	if err := entity.OverrideMergeWindows(specs, o.Config.MergeWindows); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid merge_windows", err)
	}
	registry, err := entity.NewRegistry(specs...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid entity types", err)
	}
	return registry, nil
}

// openLedger opens the configured database and builds a ledger over it.
// The caller must close the returned store.
func (o *RootOptions) openLedger() (*ledger.Ledger, *store.Store, error) {
	registry, err := o.registry()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(o.Config.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	o.Logger.Debug("opened database", "path", o.Config.Database, "types", registry.Names())

	l := ledger.New(st, registry,
		ledger.WithLogger(o.Logger),
		ledger.WithMaxRetries(o.Config.MaxRetries),
		ledger.WithTxTimeout(o.Config.TxTimeout),
	)
	return l, st, nil
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
