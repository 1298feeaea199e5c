package cli

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/roach88/thyxel/internal/compiler"
	"github.com/roach88/thyxel/internal/ir"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Genesis           string
	Authority         string
	Reserve           string
	Supply            string
	BurnRateBps       uint16
	RedistRateBps     uint16
	MaxWalletBps      uint16
	EpochDurationDays uint16
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the ledger from genesis parameters",
		Long: `Create the ledger. The whole supply is credited to the authority.

Parameters come either from a CUE genesis file or from flags. A genesis
file is validated against the embedded schema before anything is written.

Examples:
  thyxel init --genesis ./genesis.cue
  thyxel init --authority 0xA11CE... --supply 1_000_000_000 --burn-bps 100 --max-wallet-bps 200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Genesis, "genesis", "", "CUE genesis file")
	cmd.Flags().StringVar(&opts.Authority, "authority", "", "authority address")
	cmd.Flags().StringVar(&opts.Reserve, "reserve", "", "redistribution reserve address (default 0x…7e5e)")
	cmd.Flags().StringVar(&opts.Supply, "supply", "", "total supply (decimal, underscores allowed)")
	cmd.Flags().Uint16Var(&opts.BurnRateBps, "burn-bps", 0, "burn rate in basis points")
	cmd.Flags().Uint16Var(&opts.RedistRateBps, "redist-bps", 100, "redistribution rate in basis points")
	cmd.Flags().Uint16Var(&opts.MaxWalletBps, "max-wallet-bps", 0, "wallet cap in basis points of supply")
	cmd.Flags().Uint16Var(&opts.EpochDurationDays, "epoch-days", 7, "epoch duration in days")
	cmd.MarkFlagsMutuallyExclusive("genesis", "authority")

	return cmd
}

func runInit(ctx context.Context, opts *InitOptions, cmd *cobra.Command) error {
	params, err := opts.params()
	if err != nil {
		return err
	}

	eng, closeFn, err := opts.openEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	out := opts.formatter(cmd)
	st, err := eng.Initialize(ctxOrBackground(ctx), *params)
	if err != nil {
		return failure(out, "init", err)
	}
	return out.Success(stateView{st})
}

func (o *InitOptions) params() (*ir.InitParams, error) {
	if o.Genesis != "" {
		p, err := compiler.LoadGenesisFile(o.Genesis)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid genesis", err)
		}
		return p, nil
	}

	if o.Authority == "" || o.Supply == "" {
		return nil, NewExitError(ExitCommandError, "either --genesis or --authority and --supply are required")
	}
	p := &ir.InitParams{
		BurnRateBps:       o.BurnRateBps,
		RedistRateBps:     o.RedistRateBps,
		MaxWalletBps:      o.MaxWalletBps,
		EpochDurationDays: o.EpochDurationDays,
	}
	var err error
	if p.Authority, err = parseAddressArg("authority", o.Authority); err != nil {
		return nil, err
	}
	if o.Reserve != "" {
		if p.Reserve, err = parseAddressArg("reserve", o.Reserve); err != nil {
			return nil, err
		}
	}
	if p.TotalSupply, err = parseAmountArg("supply", o.Supply); err != nil {
		return nil, err
	}
	return p, nil
}

// NewTransferCommand creates the transfer command.
func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move tokens between wallets",
		Long: `Move tokens between wallets, applying the current burn and
redistribution rates unless either side is excluded.

Exit codes:
  0 - Transfer committed
  1 - Transfer rejected (insufficient balance, wallet cap, ...)
  2 - Command error`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseAddressArg("from", args[0])
			if err != nil {
				return err
			}
			to, err := parseAddressArg("to", args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmountArg("amount", args[2])
			if err != nil {
				return err
			}

			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			r, err := eng.Transfer(ctxOrBackground(cmd.Context()), from, to, amount)
			if err != nil {
				return failure(out, "transfer", err)
			}
			return out.Success(newTransferView(r))
		},
	}
}

// NewUpdateDNACommand creates the update-dna command.
func NewUpdateDNACommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update-dna <wallet> <amount>",
		Short: "Record wallet activity without moving tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := parseAddressArg("wallet", args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmountArg("amount", args[1])
			if err != nil {
				return err
			}

			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			dna, err := eng.UpdateDNA(ctxOrBackground(cmd.Context()), wallet, amount)
			if err != nil {
				return failure(out, "update-dna", err)
			}
			return out.Success(dnaView{dna})
		},
	}
}

// NewMutateCommand creates the mutate command.
func NewMutateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mutate",
		Short: "Advance the genome to the next epoch",
		Long: `Fold the finished epoch's activity into a new genome and archive
extinct wallets. Anyone may trigger it once the epoch has ended.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			ev, err := eng.TriggerMutation(ctxOrBackground(cmd.Context()))
			if err != nil {
				return failure(out, "mutate", err)
			}
			return out.Success(mutationView{ev})
		},
	}
}

func parseAddressArg(name, s string) (common.Address, error) {
	addr, err := ir.ParseAddress(s)
	if err != nil {
		return common.Address{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s", name), err)
	}
	return addr, nil
}

func parseAmountArg(name, s string) (*uint256.Int, error) {
	v, err := ir.ParseAmount(s)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s", name), err)
	}
	return v, nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
