package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/thyxel/internal/ir"
)

// NewQueryCommand creates the read-only query command group.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read ledger state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "genome",
		Short: "Show the current genome and its hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			g, err := eng.Genome(ctxOrBackground(cmd.Context()))
			if err != nil {
				return failure(out, "query genome", err)
			}
			hash, err := ir.GenomeHash(g)
			if err != nil {
				return WrapExitError(ExitCommandError, "hash genome", err)
			}
			return out.Success(genomeView{Genome: g, Hash: hash})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Show lifecycle, supply and epoch statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			st, err := eng.State(ctxOrBackground(cmd.Context()))
			if err != nil {
				return failure(out, "query state", err)
			}
			return out.Success(stateView{st})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dna <wallet>",
		Short: "Show a wallet's DNA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			dna, err := eng.WalletDNA(ctxOrBackground(cmd.Context()), wallet)
			if err != nil {
				return failure(out, "query dna", err)
			}
			return out.Success(dnaView{dna})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "balance <wallet>",
		Short: "Show a wallet's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			bal, err := eng.BalanceOf(ctxOrBackground(cmd.Context()), wallet)
			if err != nil {
				return failure(out, "query balance", err)
			}
			return out.Success(balanceView{Wallet: wallet, Balance: bal})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "excluded <wallet>",
		Short: "Show whether a wallet is exempt from tax and cap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			ok, err := eng.IsExcluded(ctxOrBackground(cmd.Context()), wallet)
			if err != nil {
				return failure(out, "query excluded", err)
			}
			return out.Success(exclusionView{Wallet: wallet, Excluded: ok})
		},
	})

	return cmd
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var after int64
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the append-only event log",
		Long: `List committed events in seq order. Page with --after set to the last
seq of the previous page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			events, err := eng.Events(ctxOrBackground(cmd.Context()), after, limit)
			if err != nil {
				return failure(out, "events", err)
			}
			if events == nil {
				events = []ir.Event{}
			}
			return out.Success(eventsView{Events: events})
		},
	}

	cmd.Flags().Int64Var(&after, "after", 0, "only events with seq greater than this")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events")

	return cmd
}
