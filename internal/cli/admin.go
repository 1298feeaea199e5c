package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/thyxel/internal/ir"
)

// Authority-gated commands. Each takes the calling address through
// --caller; after release every one of them is rejected.

func addCallerFlag(cmd *cobra.Command, caller *string) {
	cmd.Flags().StringVar(caller, "caller", "", "calling address (must be the authority)")
	_ = cmd.MarkFlagRequired("caller")
}

// NewExcludeCommand creates the exclude command.
func NewExcludeCommand(rootOpts *RootOptions) *cobra.Command {
	var caller string
	var remove bool

	cmd := &cobra.Command{
		Use:   "exclude <wallet>",
		Short: "Exempt a wallet from tax and the wallet cap",
		Long: `Add a wallet to the exclusion set, or remove it with --remove.
Excluded wallets pay no tax and are not bound by the wallet cap.

Examples:
  thyxel exclude 0xDEX... --caller 0xA11CE...
  thyxel exclude 0xDEX... --caller 0xA11CE... --remove`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseAddressArg("caller", caller)
			if err != nil {
				return err
			}
			wallet, err := parseAddressArg("wallet", args[0])
			if err != nil {
				return err
			}

			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			if err := eng.SetExcluded(ctxOrBackground(cmd.Context()), from, wallet, !remove); err != nil {
				return failure(out, "exclude", err)
			}
			return out.Success(exclusionView{Wallet: wallet, Excluded: !remove})
		},
	}

	addCallerFlag(cmd, &caller)
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the wallet from the exclusion set")

	return cmd
}

// NewEpochDurationCommand creates the epoch-duration command.
func NewEpochDurationCommand(rootOpts *RootOptions) *cobra.Command {
	var caller string

	cmd := &cobra.Command{
		Use:   "epoch-duration <days>",
		Short: "Change the epoch length",
		Long: `Change the epoch length. The running epoch is re-anchored so the
next mutation falls one new epoch after the last one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseAddressArg("caller", caller)
			if err != nil {
				return err
			}
			days, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid days", err)
			}

			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			g, err := eng.SetEpochDuration(ctxOrBackground(cmd.Context()), from, uint16(days))
			if err != nil {
				return failure(out, "epoch-duration", err)
			}
			hash, err := ir.GenomeHash(g)
			if err != nil {
				return WrapExitError(ExitCommandError, "hash genome", err)
			}
			return out.Success(genomeView{Genome: g, Hash: hash})
		},
	}

	addCallerFlag(cmd, &caller)

	return cmd
}

// NewReleaseCommand creates the release command.
func NewReleaseCommand(rootOpts *RootOptions) *cobra.Command {
	var caller string
	var confirm bool

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Renounce the authority permanently",
		Long: `Release the ledger to the wild. The authority is renounced and no
configuration can change again. This cannot be undone, so --yes is
required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return NewExitError(ExitCommandError, "release is irreversible; pass --yes to confirm")
			}
			from, err := parseAddressArg("caller", caller)
			if err != nil {
				return err
			}

			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			if err := eng.ReleaseToTheWild(ctxOrBackground(cmd.Context()), from); err != nil {
				return failure(out, "release", err)
			}
			return out.Success(lifecycleView{Lifecycle: ir.LifecycleWild})
		},
	}

	addCallerFlag(cmd, &caller)
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the irreversible release")

	return cmd
}
