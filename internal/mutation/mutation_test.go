package mutation

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thyxel/internal/ir"
)

const t0 = int64(1_700_000_000)

func seedGenome() ir.Genome {
	return ir.Genome{
		BurnRateBps:           100,
		RedistRateBps:         100,
		MaxWalletBps:          500,
		EpochDurationDays:     7,
		LastMutationTimestamp: t0,
		NextMutationTimestamp: t0 + 7*ir.SecondsPerDay,
	}
}

func statsWith(tx uint64) ir.EpochStats {
	s := ir.NewEpochStats()
	s.TxCount = tx
	return s
}

func TestMoodOf(t *testing.T) {
	tests := []struct {
		tx   uint64
		want ir.Mood
	}{
		{0, ir.MoodDormant},
		{100, ir.MoodDormant},
		{101, ir.MoodCalm},
		{500, ir.MoodCalm},
		{501, ir.MoodRestless},
		{1000, ir.MoodRestless},
		{1001, ir.MoodFrenzied},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MoodOf(tt.tx), "tx=%d", tt.tx)
	}
}

func TestIsDue(t *testing.T) {
	g := seedGenome()
	assert.False(t, IsDue(g, t0))
	assert.False(t, IsDue(g, g.NextMutationTimestamp-1))
	assert.True(t, IsDue(g, g.NextMutationTimestamp))
}

func TestAdvance_EpochBookkeeping(t *testing.T) {
	g := seedGenome()
	now := g.NextMutationTimestamp + 3*ir.SecondsPerDay // triggered late

	next, _, err := Advance(g, statsWith(0), now)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), next.EpochID)
	assert.Equal(t, now, next.LastMutationTimestamp)
	assert.Equal(t, now+7*ir.SecondsPerDay, next.NextMutationTimestamp, "next epoch starts at trigger time")
	assert.Equal(t, g.EpochDurationDays, next.EpochDurationDays)
}

func TestAdvance_MoodDrivesTraits(t *testing.T) {
	g := seedGenome()
	now := g.NextMutationTimestamp

	quiet, qp, err := Advance(g, statsWith(0), now)
	require.NoError(t, err)
	busy, bp, err := Advance(g, statsWith(5_000), now)
	require.NoError(t, err)

	assert.Equal(t, ir.MoodDormant, quiet.Mood)
	assert.Equal(t, ir.MoodFrenzied, busy.Mood)
	assert.Equal(t, qp.Drift, bp.Drift, "drift depends only on the previous genome")

	assert.Equal(t, int(g.BurnRateBps)-30+qp.Drift, int(quiet.BurnRateBps))
	assert.Equal(t, int(g.BurnRateBps)+20+bp.Drift, int(busy.BurnRateBps))
	assert.Equal(t, uint16(520), quiet.MaxWalletBps)
	assert.Equal(t, uint16(490), busy.MaxWalletBps)
	assert.Equal(t, g.RedistRateBps, quiet.RedistRateBps, "no DNA samples, redist unchanged")
}

func TestAdvance_DNAAggregate(t *testing.T) {
	g := seedGenome()
	s := statsWith(10)
	s.RecordDNA(ir.WalletDNA{Loyalty: 200, Activity: 10, Appetite: 250})
	s.RecordDNA(ir.WalletDNA{Loyalty: 150, Activity: 10, Appetite: 200})

	next, plan, err := Advance(g, s, g.NextMutationTimestamp)
	require.NoError(t, err)

	assert.Equal(t, -30+AppetiteBurnBonus, plan.BurnDelta)
	assert.Equal(t, RedistStep, plan.RedistDelta)
	assert.Equal(t, uint16(110), next.RedistRateBps)

	s2 := statsWith(10)
	s2.RecordDNA(ir.WalletDNA{Loyalty: 5})
	next2, _, err := Advance(g, s2, g.NextMutationTimestamp)
	require.NoError(t, err)
	assert.Equal(t, uint16(90), next2.RedistRateBps)
}

func TestAdvance_ClampsToBounds(t *testing.T) {
	low := seedGenome()
	low.BurnRateBps = ir.MinBurnRateBps
	low.RedistRateBps = ir.MinRedistRateBps
	low.MaxWalletBps = ir.MaxMaxWalletBps

	s := statsWith(0)
	s.RecordDNA(ir.WalletDNA{Loyalty: 0})
	next, _, err := Advance(low, s, low.NextMutationTimestamp)
	require.NoError(t, err)
	assert.Equal(t, uint16(ir.MinRedistRateBps), next.RedistRateBps)
	assert.Equal(t, uint16(ir.MaxMaxWalletBps), next.MaxWalletBps)
	assert.GreaterOrEqual(t, next.BurnRateBps, uint16(ir.MinBurnRateBps))

	high := seedGenome()
	high.BurnRateBps = ir.MaxBurnRateBps
	high.MaxWalletBps = ir.MinMaxWalletBps
	next, _, err = Advance(high, statsWith(10_000), high.NextMutationTimestamp)
	require.NoError(t, err)
	assert.LessOrEqual(t, next.BurnRateBps, uint16(ir.MaxBurnRateBps))
	assert.Equal(t, uint16(ir.MinMaxWalletBps), next.MaxWalletBps)
}

func TestAdvance_ManyEpochsStayValid(t *testing.T) {
	g := seedGenome()
	for i := 0; i < 500; i++ {
		s := statsWith(uint64(i * 37 % 1500))
		s.RecordDNA(ir.WalletDNA{Loyalty: uint8(i), Appetite: uint8(i * 3)})
		next, _, err := Advance(g, s, g.NextMutationTimestamp+int64(i))
		require.NoError(t, err)
		require.NoError(t, next.Validate())
		require.Equal(t, g.EpochID+1, next.EpochID)
		g = next
	}
}

func TestAdvance_Deterministic(t *testing.T) {
	g := seedGenome()
	s := statsWith(321)
	s.RecordDNA(ir.WalletDNA{Loyalty: 130, Appetite: 170})

	a, pa, err := Advance(g, s, g.NextMutationTimestamp)
	require.NoError(t, err)
	b, pb, err := Advance(g, s, g.NextMutationTimestamp)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, pa, pb)
}

func TestPlanFor_DriftRange(t *testing.T) {
	g := seedGenome()
	for i := 0; i < 200; i++ {
		g.EpochID = uint64(i)
		plan, err := PlanFor(g, statsWith(0))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, plan.Drift, -5)
		assert.LessOrEqual(t, plan.Drift, 5)
	}
}

func TestIsExtinct(t *testing.T) {
	epoch := int64(7 * ir.SecondsPerDay)
	now := t0 + 10*epoch
	w := common.HexToAddress("0xbeef")

	dormant := ir.WalletDNA{Wallet: w, TxCount: 3, Activity: 24, LastTxTimestamp: t0}
	assert.True(t, IsExtinct(dormant, now, epoch))

	recent := dormant
	recent.LastTxTimestamp = now - epoch
	assert.False(t, IsExtinct(recent, now, epoch))

	atCutoff := dormant
	atCutoff.LastTxTimestamp = DormancyCutoff(now, epoch)
	assert.False(t, IsExtinct(atCutoff, now, epoch), "cutoff is exclusive")

	// Stored activity is decayed to now: 255 loses 32 per idle epoch.
	busy := dormant
	busy.Activity = 255
	busy.LastTxTimestamp = now - 5*epoch
	assert.False(t, IsExtinct(busy, now, epoch), "255 - 5*32 = 95 is still active")
	busy.LastTxTimestamp = now - 6*epoch
	assert.True(t, IsExtinct(busy, now, epoch), "255 - 6*32 = 63 is below the floor")

	fossil := dormant
	fossil.Fossilized = true
	assert.False(t, IsExtinct(fossil, now, epoch))

	assert.False(t, IsExtinct(ir.WalletDNA{Wallet: w}, now, epoch), "never-seen wallet")
}

func TestFossilEligibleAt(t *testing.T) {
	epoch := int64(7 * ir.SecondsPerDay)
	w := common.HexToAddress("0xbeef")

	tests := []struct {
		name     string
		activity uint8
		want     int64
	}{
		{"below floor waits for dormancy", 8, t0 + 4*epoch + 1},
		{"decays within dormancy", 127, t0 + 4*epoch + 1},
		{"80 after one epoch", 80, t0 + 4*epoch + 1},
		{"160 needs four epochs", 160, t0 + 4*epoch + 1},
		{"192 needs five epochs", 192, t0 + 5*epoch},
		{"saturated needs six epochs", 255, t0 + 6*epoch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ir.WalletDNA{Wallet: w, TxCount: 9, Activity: tt.activity, LastTxTimestamp: t0}
			assert.Equal(t, tt.want, FossilEligibleAt(d, epoch))
		})
	}

	assert.Equal(t, int64(NeverEligible), FossilEligibleAt(ir.WalletDNA{Wallet: w}, epoch))
	assert.Equal(t, int64(NeverEligible), FossilEligibleAt(ir.WalletDNA{Wallet: w, TxCount: 1, Fossilized: true}, epoch))
}

func TestFossilEligibleAt_MatchesIsExtinct(t *testing.T) {
	w := common.HexToAddress("0xbeef")
	for _, days := range []int64{1, 7, 30} {
		epoch := days * ir.SecondsPerDay
		for activity := 0; activity <= 255; activity += 17 {
			d := ir.WalletDNA{Wallet: w, TxCount: 5, Activity: uint8(activity), LastTxTimestamp: t0}
			at := FossilEligibleAt(d, epoch)
			for _, now := range []int64{at - epoch, at - 1, at, at + 1, at + 20*epoch} {
				assert.Equal(t, now >= at, IsExtinct(d, now, epoch),
					"days=%d activity=%d now=%d eligible=%d", days, activity, now, at)
			}
		}
	}
}
