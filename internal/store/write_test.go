package store

import (
	"context"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thyxel/internal/ir"
)

func TestState_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.LoadState(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	st := createTestState()
	st.Genome.Mood = ir.MoodRestless
	st.Stats.RecordTransfer(ir.MustAmount("500"))
	st.Stats.RecordDNA(ir.WalletDNA{Loyalty: 3, Activity: 4, Appetite: 5})
	update(t, s, func(tx *Tx) error { return tx.InsertState(ctx, st) })

	got, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestState_InsertTwice(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	update(t, s, func(tx *Tx) error { return tx.InsertState(ctx, createTestState()) })

	err := s.Update(ctx, func(tx *Tx) error { return tx.InsertState(ctx, createTestState()) })
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestState_SaveBeforeInit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error { return tx.SaveState(ctx, createTestState()) })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestState_SaveOverwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	st := createTestState()
	update(t, s, func(tx *Tx) error { return tx.InsertState(ctx, st) })

	st.Lifecycle = ir.LifecycleWild
	st.Authority = common.Address{}
	st.Genome.EpochID = 9
	st.FossilCount = 4
	st.TotalSupply = ir.MustAmount("999")
	update(t, s, func(tx *Tx) error { return tx.SaveState(ctx, st) })

	got, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestState_HighBitCounters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	st := createTestState()
	st.Genome.EpochID = math.MaxUint64
	st.Stats.TxCount = math.MaxUint64
	st.FossilCount = 1 << 63
	update(t, s, func(tx *Tx) error { return tx.InsertState(ctx, st) })

	got, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got.Genome.EpochID)
	assert.Equal(t, uint64(math.MaxUint64), got.Stats.TxCount)
	assert.Equal(t, uint64(1<<63), got.FossilCount)
}

func TestBalances(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a, b, c := addr("0x0b"), addr("0x0a"), addr("0x0c")

	bal, err := s.Balance(ctx, a)
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "unknown wallet holds zero")

	top := new(uint256.Int).SetAllOne()
	update(t, s, func(tx *Tx) error {
		require.NoError(t, tx.SetBalance(ctx, a, ir.MustAmount("10")))
		require.NoError(t, tx.SetBalance(ctx, b, top))
		require.NoError(t, tx.SetBalance(ctx, c, ir.MustAmount("7")))
		return tx.SetBalance(ctx, c, new(uint256.Int))
	})

	bal, err = s.Balance(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, top, bal)

	entries, err := s.Balances(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2, "zero balances are omitted")
	assert.Equal(t, b, entries[0].Wallet, "ordered by wallet")
	assert.Equal(t, a, entries[1].Wallet)
}

func TestWalletDNA_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	w := addr("0xdead")

	d, ok, err := s.WalletDNA(ctx, w)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ir.NewWalletDNA(w), d)

	want := createTestDNA(w, 1_700_000_000, 200)
	want.Loyalty = 255
	update(t, s, func(tx *Tx) error { return tx.PutWalletDNA(ctx, want, 1_700_100_000) })

	d, ok, err = s.WalletDNA(ctx, w)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, d)
	at, err := s.FossilEligibleAt(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_100_000), at)

	want.Fossilized = true
	want.TxCount = 4
	update(t, s, func(tx *Tx) error { return tx.PutWalletDNA(ctx, want, math.MaxInt64) })
	d, _, err = s.WalletDNA(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, want, d)

	all, err := s.AllWalletDNA(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestExtinctionCandidates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const now = int64(1_000)
	update(t, s, func(tx *Tx) error {
		fossil := createTestDNA(addr("0x07"), 10, 0)
		fossil.Fossilized = true
		rows := []struct {
			d  ir.WalletDNA
			at int64
		}{
			{createTestDNA(addr("0x03"), 100, 10), 500},         // candidate
			{createTestDNA(addr("0x02"), 100, 10), 500},         // candidate, same time, lower wallet
			{createTestDNA(addr("0x01"), 900, 200), 100},        // earliest; stored activity is not consulted
			{createTestDNA(addr("0x04"), 100, 0), 1000},         // due exactly now
			{createTestDNA(addr("0x05"), 10, 0), 1001},          // not yet due
			{createTestDNA(addr("0x06"), 10, 0), math.MaxInt64}, // never scheduled
			{fossil, 0},
		}
		for _, r := range rows {
			if err := tx.PutWalletDNA(ctx, r.d, r.at); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := s.ExtinctionCandidates(ctx, now, 10)
	require.NoError(t, err)
	var wallets []common.Address
	for _, d := range got {
		wallets = append(wallets, d.Wallet)
	}
	assert.Equal(t, []common.Address{addr("0x01"), addr("0x02"), addr("0x03"), addr("0x04")}, wallets)

	limited, err := s.ExtinctionCandidates(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, addr("0x01"), limited[0].Wallet)

	update(t, s, func(tx *Tx) error {
		require.NoError(t, tx.SetFossilEligibleAt(ctx, addr("0x01"), 2_000))
		return tx.SetFossilEligibleAt(ctx, addr("0xab5e"), 0)
	})
	got, err = s.ExtinctionCandidates(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, addr("0x02"), got[0].Wallet)

	_, err = s.FossilEligibleAt(ctx, addr("0xab5e"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtinctionCandidates_UsesIndex(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.DB().Query(`EXPLAIN QUERY PLAN
		SELECT wallet FROM wallet_dna
		WHERE fossilized = 0 AND fossil_eligible_at <= 1
		ORDER BY fossil_eligible_at ASC, wallet ASC LIMIT 64`)
	require.NoError(t, err)
	defer rows.Close()

	var plan string
	for rows.Next() {
		var id, parent, notused int
		var detail string
		require.NoError(t, rows.Scan(&id, &parent, &notused, &detail))
		plan += detail + "\n"
	}
	assert.Contains(t, plan, "idx_wallet_dna_eligible")
	assert.Contains(t, plan, "fossil_eligible_at<?", "range seek, not a filtered walk")
	assert.NotContains(t, plan, "TEMP B-TREE", "ordering comes from the index")
}

func TestExclusions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	w := addr("0xe1")

	ok, err := s.IsExcluded(ctx, w)
	require.NoError(t, err)
	assert.False(t, ok)

	update(t, s, func(tx *Tx) error {
		require.NoError(t, tx.SetExcluded(ctx, w, true))
		return tx.SetExcluded(ctx, w, true)
	})
	ok, err = s.IsExcluded(ctx, w)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := s.Exclusions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{w}, list)

	update(t, s, func(tx *Tx) error {
		require.NoError(t, tx.SetExcluded(ctx, w, false))
		return tx.SetExcluded(ctx, w, false)
	})
	ok, err = s.IsExcluded(ctx, w)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testFossil(index uint64, w common.Address) ir.FossilRecord {
	d := createTestDNA(w, 1_000, 12)
	d.Fossilized = true
	return ir.FossilRecord{
		FossilIndex:       index,
		Wallet:            w,
		GenomeHash:        common.HexToHash("0xabcdef"),
		FossilizedAtEpoch: 5,
		FossilizedAt:      9_999,
		DNA:               d,
	}
}

func TestFossils_InsertIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	w := addr("0xf0")

	first := testFossil(0, w)
	update(t, s, func(tx *Tx) error {
		got, inserted, err := tx.InsertFossil(ctx, first)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, first, got)

		again := testFossil(7, w)
		again.FossilizedAtEpoch = 99
		got, inserted, err = tx.InsertFossil(ctx, again)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, first, got, "existing record wins")
		return nil
	})

	got, err := s.Fossil(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = s.FossilOf(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	_, err = s.Fossil(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FossilOf(ctx, addr("0xf1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFossils_Pagination(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	update(t, s, func(tx *Tx) error {
		for i := uint64(0); i < 5; i++ {
			if _, _, err := tx.InsertFossil(ctx, testFossil(i, common.BytesToAddress([]byte{byte(100 + i)}))); err != nil {
				return err
			}
		}
		return nil
	})

	page, err := s.Fossils(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(0), page[0].FossilIndex)
	assert.Equal(t, uint64(1), page[1].FossilIndex)

	page, err = s.Fossils(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].FossilIndex)

	page, err = s.Fossils(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestEvents_AppendAndRead(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastEventSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	var appended []ir.Event
	update(t, s, func(tx *Tx) error {
		for i := 0; i < 3; i++ {
			ev, err := tx.AppendEvent(ctx, ir.EventTransfer, int64(100+i), ir.IRObject{
				"amount": ir.IRString("42"),
				"n":      ir.IRInt(i),
			})
			if err != nil {
				return err
			}
			appended = append(appended, ev)
		}
		return nil
	})

	require.Len(t, appended, 3)
	assert.Equal(t, int64(1), appended[0].Seq)
	assert.Equal(t, int64(3), appended[2].Seq)

	events, err := s.Events(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, appended, events)

	tail, err := s.Events(ctx, 2, 100)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Seq)
}

func TestEvents_IDsAreDeterministic(t *testing.T) {
	ctx := context.Background()
	payload := ir.IRObject{"wallet": ir.IRString("0x01")}

	var ids []string
	for i := 0; i < 2; i++ {
		s := createTestStore(t)
		update(t, s, func(tx *Tx) error {
			ev, err := tx.AppendEvent(ctx, ir.EventDNAUpdated, 5, payload)
			ids = append(ids, ev.ID)
			return err
		})
	}
	assert.Equal(t, ids[0], ids[1])
}
