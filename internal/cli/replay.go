package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/thyxel/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Into string // target database; empty replays in memory
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay event log and verify determinism",
		Long: `Re-execute the event log into an empty ledger and compare state
digests. Every event ID and the final digest must match the source.

Exit codes:
  0 - Replay reproduced the ledger exactly
  1 - Replay diverged
  2 - Command error (database not found, target not empty, etc.)

Examples:
  thyxel replay --db ./thyxel.db
  thyxel replay --db ./thyxel.db --into ./rebuilt.db
  thyxel replay --db ./thyxel.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Into, "into", "", "write the rebuilt ledger to this new database file")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.DB); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.DB))
	}

	target := ":memory:"
	if opts.Into != "" {
		if _, err := os.Stat(opts.Into); err == nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("replay target already exists: %s", opts.Into))
		}
		target = opts.Into
	}

	eng, closeFn, err := opts.openEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	dst, err := store.Open(target)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open replay target", err)
	}
	defer dst.Close()

	out := opts.formatter(cmd)
	out.VerboseLog("replaying %s into %s", opts.DB, target)

	report, err := eng.Replay(ctxOrBackground(cmd.Context()), dst)
	if err != nil {
		return failure(out, "replay", err)
	}

	if err := out.Success(replayView{report}); err != nil {
		return err
	}
	if !report.Match {
		return NewExitError(ExitFailure, fmt.Sprintf("replay diverged at seq %d", report.DivergedAt))
	}
	return nil
}
