package harness

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/ir"
)

// dispatch runs one action against the engine and describes its outcome.
//
// Result fields per action:
//
//	initialize          lifecycle, total_supply
//	transfer            burn, redist, net, exempt
//	update_dna          loyalty, activity, appetite, tx_count
//	advance             now
//	mutate              epoch_id, mood, new_fossils
//	mint_fossil         fossil_index, fossilized_at_epoch, created
//	set_excluded        excluded
//	set_epoch_duration  epoch_duration_days, next_mutation_timestamp
//	release             lifecycle
func (h *Harness) dispatch(ctx context.Context, action string, args ir.IRObject) (ir.IRObject, error) {
	switch action {
	case ActionInitialize:
		return h.initialize(ctx, args)
	case ActionTransfer:
		return h.transfer(ctx, args)
	case ActionUpdateDNA:
		return h.updateDNA(ctx, args)
	case ActionAdvance:
		return h.advance(args)
	case ActionMutate:
		return h.mutate(ctx)
	case ActionMintFossil:
		return h.mintFossil(ctx, args)
	case ActionSetExcluded:
		return h.setExcluded(ctx, args)
	case ActionSetEpochDuration:
		return h.setEpochDuration(ctx, args)
	case ActionRelease:
		return h.release(ctx, args)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func (h *Harness) initialize(ctx context.Context, args ir.IRObject) (ir.IRObject, error) {
	var p ir.InitParams
	var err error
	if p.Authority, err = h.address(args, "authority"); err != nil {
		return nil, err
	}
	if _, ok := args["reserve"]; ok {
		if p.Reserve, err = h.address(args, "reserve"); err != nil {
			return nil, err
		}
	}
	if p.TotalSupply, err = amountArg(args, "total_supply"); err != nil {
		return nil, err
	}

	fields := []struct {
		key string
		def uint16
		dst *uint16
	}{
		{"burn_rate_bps", 0, &p.BurnRateBps},
		{"redist_rate_bps", 100, &p.RedistRateBps},
		{"max_wallet_bps", 0, &p.MaxWalletBps},
		{"epoch_duration_days", 7, &p.EpochDurationDays},
	}
	for _, f := range fields {
		if *f.dst, err = uint16Arg(args, f.key, f.def); err != nil {
			return nil, err
		}
	}

	st, err := h.engine.Initialize(ctx, p)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{
		"lifecycle":    ir.IRString(st.Lifecycle.String()),
		"total_supply": ir.IRString(ir.FormatAmount(st.TotalSupply)),
	}, nil
}

func (h *Harness) transfer(ctx context.Context, args ir.IRObject) (ir.IRObject, error) {
	from, err := h.address(args, "from")
	if err != nil {
		return nil, err
	}
	to, err := h.address(args, "to")
	if err != nil {
		return nil, err
	}
	amount, err := amountArg(args, "amount")
	if err != nil {
		return nil, err
	}

	r, err := h.engine.Transfer(ctx, from, to, amount)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{
		"burn":   ir.IRString(ir.FormatAmount(r.Breakdown.Burn)),
		"redist": ir.IRString(ir.FormatAmount(r.Breakdown.Redist)),
		"net":    ir.IRString(ir.FormatAmount(r.Breakdown.Net)),
		"exempt": ir.IRBool(r.Breakdown.Exempt),
	}, nil
}

func (h *Harness) updateDNA(ctx context.Context, args ir.IRObject) (ir.IRObject, error) {
	wallet, err := h.address(args, "wallet")
	if err != nil {
		return nil, err
	}
	amount := new(uint256.Int)
	if _, ok := args["amount"]; ok {
		if amount, err = amountArg(args, "amount"); err != nil {
			return nil, err
		}
	}

	d, err := h.engine.UpdateDNA(ctx, wallet, amount)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{
		"loyalty":  ir.IRInt(d.Loyalty),
		"activity": ir.IRInt(d.Activity),
		"appetite": ir.IRInt(d.Appetite),
		"tx_count": ir.IRInt(d.TxCount),
	}, nil
}

// advance moves the manual clock by days and/or seconds. It never touches
// the engine.
func (h *Harness) advance(args ir.IRObject) (ir.IRObject, error) {
	var total int64
	if _, ok := args["days"]; ok {
		days, err := args.Int("days")
		if err != nil {
			return nil, err
		}
		total += days * ir.SecondsPerDay
	}
	if _, ok := args["seconds"]; ok {
		secs, err := args.Int("seconds")
		if err != nil {
			return nil, err
		}
		total += secs
	}
	return ir.IRObject{"now": ir.IRInt(h.clock.Advance(total))}, nil
}

func (h *Harness) mutate(ctx context.Context) (ir.IRObject, error) {
	ev, err := h.engine.TriggerMutation(ctx)
	if err != nil {
		return nil, err
	}
	fossils := make(ir.IRArray, len(ev.NewFossils))
	for i, f := range ev.NewFossils {
		fossils[i] = ir.IRString(h.name(f.Wallet))
	}
	return ir.IRObject{
		"epoch_id":    ir.IRInt(ev.EpochID),
		"mood":        ir.IRString(ev.Mood.String()),
		"new_fossils": fossils,
	}, nil
}

func (h *Harness) mintFossil(ctx context.Context, args ir.IRObject) (ir.IRObject, error) {
	wallet, err := h.address(args, "wallet")
	if err != nil {
		return nil, err
	}
	f, created, err := h.engine.MintFossil(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{
		"fossil_index":        ir.IRInt(f.FossilIndex),
		"fossilized_at_epoch": ir.IRInt(f.FossilizedAtEpoch),
		"created":             ir.IRBool(created),
	}, nil
}

func (h *Harness) setExcluded(ctx context.Context, args ir.IRObject) (ir.IRObject, error) {
	caller, err := h.address(args, "caller")
	if err != nil {
		return nil, err
	}
	wallet, err := h.address(args, "wallet")
	if err != nil {
		return nil, err
	}
	excluded, err := args.Bool("excluded")
	if err != nil {
		return nil, err
	}
	if err := h.engine.SetExcluded(ctx, caller, wallet, excluded); err != nil {
		return nil, err
	}
	return ir.IRObject{"excluded": ir.IRBool(excluded)}, nil
}

func (h *Harness) setEpochDuration(ctx context.Context, args ir.IRObject) (ir.IRObject, error) {
	caller, err := h.address(args, "caller")
	if err != nil {
		return nil, err
	}
	days, err := uint16Arg(args, "days", 0)
	if err != nil {
		return nil, err
	}
	g, err := h.engine.SetEpochDuration(ctx, caller, days)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{
		"epoch_duration_days":     ir.IRInt(g.EpochDurationDays),
		"next_mutation_timestamp": ir.IRInt(g.NextMutationTimestamp),
	}, nil
}

func (h *Harness) release(ctx context.Context, args ir.IRObject) (ir.IRObject, error) {
	caller, err := h.address(args, "caller")
	if err != nil {
		return nil, err
	}
	if err := h.engine.ReleaseToTheWild(ctx, caller); err != nil {
		return nil, err
	}
	return ir.IRObject{"lifecycle": ir.IRString(ir.LifecycleWild.String())}, nil
}

// address resolves a wallet argument: a registered alias or a hex address.
func (h *Harness) address(args ir.IRObject, key string) (common.Address, error) {
	s, err := args.String(key)
	if err != nil {
		return common.Address{}, err
	}
	if addr, ok := h.wallets[s]; ok {
		return addr, nil
	}
	return ir.ParseAddress(s)
}

// name is the inverse of address for trace output.
func (h *Harness) name(addr common.Address) string {
	if alias, ok := h.aliases[addr]; ok {
		return alias
	}
	return addr.Hex()
}

// amountArg reads a decimal string or a non-negative integer.
func amountArg(args ir.IRObject, key string) (*uint256.Int, error) {
	switch v := args[key].(type) {
	case ir.IRString:
		return ir.ParseAmount(string(v))
	case ir.IRInt:
		if v < 0 {
			return nil, fmt.Errorf("%s: negative amount %d", key, v)
		}
		return uint256.NewInt(uint64(v)), nil
	case nil:
		return nil, fmt.Errorf("missing field %q", key)
	default:
		return nil, fmt.Errorf("%s: expected amount, got %T", key, v)
	}
}

// uint16Arg reads an optional small integer; def applies when absent.
func uint16Arg(args ir.IRObject, key string, def uint16) (uint16, error) {
	if _, ok := args[key]; !ok {
		return def, nil
	}
	n, err := args.Int(key)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxUint16 {
		return 0, fmt.Errorf("%s: %d out of range", key, n)
	}
	return uint16(n), nil
}
