package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/store"
)

// Page size limits for paginated queries.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return min(limit, MaxPageSize)
}

// view runs fn against the store under the engine lock.
func (e *Engine) view(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

// State returns the ledger config slot: lifecycle, authority, reserve,
// supply, genome and epoch accumulator.
func (e *Engine) State(ctx context.Context) (ir.LedgerState, error) {
	var st ir.LedgerState
	err := e.view(func() error {
		var err error
		st, err = e.store.LoadState(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrCodeNotInitialized, "ledger has not been initialized")
		}
		return err
	})
	return st, err
}

// Genome returns the current genome.
func (e *Engine) Genome(ctx context.Context) (ir.Genome, error) {
	st, err := e.State(ctx)
	if err != nil {
		return ir.Genome{}, err
	}
	return st.Genome, nil
}

// WalletDNA returns a wallet's DNA, or WALLET_NOT_FOUND if it never
// transacted.
func (e *Engine) WalletDNA(ctx context.Context, w common.Address) (ir.WalletDNA, error) {
	var d ir.WalletDNA
	err := e.view(func() error {
		var ok bool
		var err error
		d, ok, err = e.store.WalletDNA(ctx, w)
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrCodeWalletNotFound, "wallet %s has no DNA", w.Hex())
		}
		return nil
	})
	return d, err
}

// Fossil returns the fossil at index.
func (e *Engine) Fossil(ctx context.Context, index uint64) (ir.FossilRecord, error) {
	var f ir.FossilRecord
	err := e.view(func() error {
		var err error
		f, err = e.store.Fossil(ctx, index)
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrCodeNotFound, "no fossil at index %d", index)
		}
		return err
	})
	return f, err
}

// FossilOf returns a wallet's fossil.
func (e *Engine) FossilOf(ctx context.Context, w common.Address) (ir.FossilRecord, error) {
	var f ir.FossilRecord
	err := e.view(func() error {
		var err error
		f, err = e.store.FossilOf(ctx, w)
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrCodeNotFound, "wallet %s is not fossilized", w.Hex())
		}
		return err
	})
	return f, err
}

// Fossils returns a page of the archive in index order. limit <= 0 selects
// DefaultPageSize; larger limits are capped at MaxPageSize.
func (e *Engine) Fossils(ctx context.Context, offset uint64, limit int) ([]ir.FossilRecord, error) {
	var out []ir.FossilRecord
	err := e.view(func() error {
		var err error
		out, err = e.store.Fossils(ctx, offset, pageSize(limit))
		return err
	})
	return out, err
}

// IsExcluded reports whether a wallet is exempt from tax and cap.
func (e *Engine) IsExcluded(ctx context.Context, w common.Address) (bool, error) {
	var ok bool
	err := e.view(func() error {
		var err error
		ok, err = e.store.IsExcluded(ctx, w)
		return err
	})
	return ok, err
}

// BalanceOf returns a wallet's balance.
func (e *Engine) BalanceOf(ctx context.Context, w common.Address) (*uint256.Int, error) {
	var bal *uint256.Int
	err := e.view(func() error {
		var err error
		bal, err = e.store.Balance(ctx, w)
		return err
	})
	return bal, err
}

// Events returns a page of the event log after afterSeq.
func (e *Engine) Events(ctx context.Context, afterSeq int64, limit int) ([]ir.Event, error) {
	var out []ir.Event
	err := e.view(func() error {
		var err error
		out, err = e.store.Events(ctx, afterSeq, pageSize(limit))
		return err
	})
	return out, err
}

// StateDigest hashes the complete ledger state: config slot, balances, DNA,
// exclusions, fossil archive and event IDs. Two stores with equal digests
// hold identical ledgers.
func (e *Engine) StateDigest(ctx context.Context) (common.Hash, error) {
	var snapshot ir.IRObject
	err := e.view(func() error {
		var err error
		snapshot, err = e.snapshot(ctx)
		return err
	})
	if err != nil {
		return common.Hash{}, err
	}
	return ir.StateDigest(snapshot)
}

func (e *Engine) snapshot(ctx context.Context) (ir.IRObject, error) {
	st, err := e.store.LoadState(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(ErrCodeNotInitialized, "ledger has not been initialized")
	}
	if err != nil {
		return nil, err
	}

	balances, err := e.store.Balances(ctx)
	if err != nil {
		return nil, err
	}
	balArr := make(ir.IRArray, len(balances))
	for i, b := range balances {
		balArr[i] = ir.IRObject{
			"wallet": ir.IRString(b.Wallet.Hex()),
			"amount": ir.IRString(ir.FormatAmount(b.Amount)),
		}
	}

	all, err := e.store.AllWalletDNA(ctx)
	if err != nil {
		return nil, err
	}
	dnaArr := make(ir.IRArray, len(all))
	for i, d := range all {
		dnaArr[i] = d.ToIR()
	}

	excl, err := e.store.Exclusions(ctx)
	if err != nil {
		return nil, err
	}
	exclArr := make(ir.IRArray, len(excl))
	for i, w := range excl {
		exclArr[i] = ir.IRString(w.Hex())
	}

	fossilArr := ir.IRArray{}
	for offset := uint64(0); ; {
		page, err := e.store.Fossils(ctx, offset, MaxPageSize)
		if err != nil {
			return nil, err
		}
		for _, f := range page {
			fossilArr = append(fossilArr, f.ToIR())
		}
		if len(page) < MaxPageSize {
			break
		}
		offset += uint64(len(page))
	}

	eventIDs := ir.IRArray{}
	for after := int64(0); ; {
		page, err := e.store.Events(ctx, after, MaxPageSize)
		if err != nil {
			return nil, err
		}
		for _, ev := range page {
			eventIDs = append(eventIDs, ir.IRString(ev.ID))
		}
		if len(page) < MaxPageSize {
			break
		}
		after = page[len(page)-1].Seq
	}

	return ir.IRObject{
		"version":    ir.IRString(fmt.Sprintf("ir/%s engine/%s", ir.IRVersion, ir.EngineVersion)),
		"state":      st.ToIR(),
		"balances":   balArr,
		"wallet_dna": dnaArr,
		"exclusions": exclArr,
		"fossils":    fossilArr,
		"event_ids":  eventIDs,
	}, nil
}
