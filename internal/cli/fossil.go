package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewFossilCommand creates the fossil command group.
func NewFossilCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fossil",
		Short: "Inspect and mint fossil records",
		Long: `Fossils are the permanent archive of extinct wallets: a snapshot of
their DNA and the genome hash at the moment they went dormant.`,
	}

	cmd.AddCommand(newFossilMintCommand(rootOpts))
	cmd.AddCommand(newFossilGetCommand(rootOpts))
	cmd.AddCommand(newFossilOfCommand(rootOpts))
	cmd.AddCommand(newFossilListCommand(rootOpts))

	return cmd
}

func newFossilMintCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <wallet>",
		Short: "Fossilize an extinct wallet",
		Long: `Fossilize a wallet that meets the extinction criteria. Minting an
already fossilized wallet returns its existing record.`,
		Args: cobra.ExactArgs(1),
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
			rec, created, err := eng.MintFossil(ctxOrBackground(cmd.Context()), wallet)
			if err != nil {
				return failure(out, "fossil mint", err)
			}
			return out.Success(fossilView{FossilRecord: rec, Created: &created})
		},
	}
}

func newFossilGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <index>",
		Short: "Show a fossil by archive index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid index", err)
			}

			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			rec, err := eng.Fossil(ctxOrBackground(cmd.Context()), index)
			if err != nil {
				return failure(out, "fossil get", err)
			}
			return out.Success(fossilView{FossilRecord: rec})
		},
	}
}

func newFossilOfCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "of <wallet>",
		Short: "Show the fossil of a wallet",
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
			rec, err := eng.FossilOf(ctxOrBackground(cmd.Context()), wallet)
			if err != nil {
				return failure(out, "fossil of", err)
			}
			return out.Success(fossilView{FossilRecord: rec})
		},
	}
}

func newFossilListCommand(rootOpts *RootOptions) *cobra.Command {
	var offset uint64
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fossils in archive order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := rootOpts.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			recs, err := eng.Fossils(ctxOrBackground(cmd.Context()), offset, limit)
			if err != nil {
				return failure(out, "fossil list", err)
			}
			return out.Success(fossilListView{Offset: offset, Fossils: recs})
		},
	}

	cmd.Flags().Uint64Var(&offset, "offset", 0, "first archive index")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records")

	return cmd
}
