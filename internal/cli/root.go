package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/roach88/thyxel/internal/engine"
	"github.com/roach88/thyxel/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	DB       string
	Now      int64 // unix seconds; 0 reads the system clock
	LogLevel string
}

// EnvConfig supplies flag defaults from the environment.
type EnvConfig struct {
	DB       string `env:"THYXEL_DB"        envDefault:"thyxel.db"`
	Format   string `env:"THYXEL_FORMAT"    envDefault:"text"`
	LogLevel string `env:"THYXEL_LOG_LEVEL" envDefault:"warn"`
}

// LoadEnvConfig reads EnvConfig from the process environment.
func LoadEnvConfig() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the thyxel CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	envCfg, envErr := LoadEnvConfig()

	cmd := &cobra.Command{
		Use:   "thyxel",
		Short: "Thyxel - a self-mutating token ledger",
		Long: `Thyxel is a token ledger whose economic parameters evolve.

Every transfer pays a burn and a redistribution tax and updates the
behavioral DNA of both wallets. Once per epoch a mutation folds the
epoch's activity into a new genome, and wallets that have gone dormant
are archived as fossils.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", envErr)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level, err := parseLevel(opts.LogLevel)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid log level", err)
			}
			if opts.Verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
			slog.SetDefault(slog.New(handler))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", envCfg.Format, "output format (json|text) [$THYXEL_FORMAT]")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", envCfg.DB, "path to SQLite database [$THYXEL_DB]")
	cmd.PersistentFlags().Int64Var(&opts.Now, "now", 0, "override the clock (unix seconds)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", envCfg.LogLevel, "log level (debug|info|warn|error) [$THYXEL_LOG_LEVEL]")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewTransferCommand(opts))
	cmd.AddCommand(NewUpdateDNACommand(opts))
	cmd.AddCommand(NewMutateCommand(opts))
	cmd.AddCommand(NewFossilCommand(opts))
	cmd.AddCommand(NewExcludeCommand(opts))
	cmd.AddCommand(NewEpochDurationCommand(opts))
	cmd.AddCommand(NewReleaseCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, err
	}
	return level, nil
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openEngine opens the ledger database and wraps it in an engine. The
// returned close function must be called when the command finishes.
func (o *RootOptions) openEngine() (*engine.Engine, func(), error) {
	if o.DB == "" {
		return nil, nil, NewExitError(ExitCommandError, "--db is required")
	}
	st, err := store.Open(o.DB)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var clock engine.Clock = engine.SystemClock{}
	if o.Now != 0 {
		clock = engine.FixedClock(o.Now)
	}
	eng := engine.New(st,
		engine.WithClock(clock),
		engine.WithLogger(slog.Default()),
	)

	closeFn := func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}
	return eng, closeFn, nil
}

// failure reports err through f and converts it to an ExitError. Engine
// rejections exit with ExitFailure; anything else is a command error.
func failure(f *OutputFormatter, op string, err error) error {
	code := engine.CodeOf(err)
	if code == "" {
		return WrapExitError(ExitCommandError, op+" failed", err)
	}

	var details interface{}
	var e *engine.Error
	if errors.As(err, &e) && len(e.Details) > 0 {
		details = e.Details
	}
	if outErr := f.Error(string(code), err.Error(), details); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, op+" rejected", err)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
