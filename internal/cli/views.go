package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/engine"
	"github.com/roach88/thyxel/internal/ir"
)

// Command payloads. Each renders as JSON through its field tags and as
// aligned text through renderText.

type stateView struct {
	ir.LedgerState
}

func (v stateView) renderText(w io.Writer) {
	g := v.Genome
	kv(w,
		"lifecycle", v.Lifecycle.String(),
		"authority", v.Authority.Hex(),
		"reserve", v.Reserve.Hex(),
		"total supply", formatAmount(v.TotalSupply),
		"epoch", strconv.FormatUint(g.EpochID, 10),
		"mood", g.Mood.String(),
		"next mutation", formatTime(g.NextMutationTimestamp),
		"epoch transfers", strconv.FormatUint(v.Stats.TxCount, 10),
		"epoch volume", formatAmount(v.Stats.Volume),
		"fossils", strconv.FormatUint(v.FossilCount, 10),
	)
}

type genomeView struct {
	ir.Genome
	Hash common.Hash `json:"genome_hash"`
}

func (v genomeView) renderText(w io.Writer) {
	kv(w,
		"burn rate", formatBps(v.BurnRateBps),
		"redistribution rate", formatBps(v.RedistRateBps),
		"max wallet", formatBps(v.MaxWalletBps),
		"epoch", strconv.FormatUint(v.EpochID, 10),
		"epoch duration", fmt.Sprintf("%d days", v.EpochDurationDays),
		"last mutation", formatTime(v.LastMutationTimestamp),
		"next mutation", formatTime(v.NextMutationTimestamp),
		"mood", v.Mood.String(),
		"hash", v.Hash.Hex(),
	)
}

type dnaView struct {
	ir.WalletDNA
}

func (v dnaView) renderText(w io.Writer) {
	status := "alive"
	if v.Fossilized {
		status = "fossilized"
	}
	kv(w,
		"wallet", v.Wallet.Hex(),
		"loyalty", strconv.Itoa(int(v.Loyalty)),
		"activity", strconv.Itoa(int(v.Activity)),
		"appetite", strconv.Itoa(int(v.Appetite)),
		"transfers", strconv.FormatUint(v.TxCount, 10),
		"volume", formatAmount(v.TotalVolume),
		"first seen", formatTime(v.FirstTxTimestamp),
		"last seen", formatTime(v.LastTxTimestamp),
		"status", status,
	)
}

type fossilView struct {
	ir.FossilRecord
	Created *bool `json:"created,omitempty"`
}

func (v fossilView) renderText(w io.Writer) {
	pairs := []string{
		"fossil", "#" + strconv.FormatUint(v.FossilIndex, 10),
		"wallet", v.Wallet.Hex(),
		"epoch", strconv.FormatUint(v.FossilizedAtEpoch, 10),
		"fossilized at", formatTime(v.FossilizedAt),
		"genome", v.GenomeHash.Hex(),
		"dna", fmt.Sprintf("loyalty %d, activity %d, appetite %d", v.DNA.Loyalty, v.DNA.Activity, v.DNA.Appetite),
		"transfers", strconv.FormatUint(v.DNA.TxCount, 10),
	}
	if v.Created != nil && !*v.Created {
		pairs = append(pairs, "note", "already fossilized")
	}
	kv(w, pairs...)
}

type fossilListView struct {
	Offset  uint64            `json:"offset"`
	Fossils []ir.FossilRecord `json:"fossils"`
}

func (v fossilListView) renderText(w io.Writer) {
	if len(v.Fossils) == 0 {
		fmt.Fprintln(w, "No fossils.")
		return
	}
	for _, f := range v.Fossils {
		fmt.Fprintf(w, "#%-4d %s  epoch %d  loyalty %d activity %d appetite %d\n",
			f.FossilIndex, f.Wallet.Hex(), f.FossilizedAtEpoch, f.DNA.Loyalty, f.DNA.Activity, f.DNA.Appetite)
	}
}

type transferView struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Amount   *uint256.Int   `json:"amount"`
	Burn     *uint256.Int   `json:"burn"`
	Redist   *uint256.Int   `json:"redist"`
	Net      *uint256.Int   `json:"net"`
	Exempt   bool           `json:"exempt"`
	EventSeq int64          `json:"event_seq"`
}

func newTransferView(r engine.TransferReceipt) transferView {
	return transferView{
		From:     r.From,
		To:       r.To,
		Amount:   r.Breakdown.Amount,
		Burn:     r.Breakdown.Burn,
		Redist:   r.Breakdown.Redist,
		Net:      r.Breakdown.Net,
		Exempt:   r.Breakdown.Exempt,
		EventSeq: r.EventSeq,
	}
}

func (v transferView) renderText(w io.Writer) {
	pairs := []string{
		"from", v.From.Hex(),
		"to", v.To.Hex(),
		"amount", formatAmount(v.Amount),
		"burned", formatAmount(v.Burn),
		"redistributed", formatAmount(v.Redist),
		"received", formatAmount(v.Net),
	}
	if v.Exempt {
		pairs = append(pairs, "tax", "exempt")
	}
	kv(w, pairs...)
}

type mutationView struct {
	ir.MutationEvent
}

func (v mutationView) renderText(w io.Writer) {
	b, a := v.Before, v.After
	kv(w,
		"epoch", strconv.FormatUint(v.EpochID, 10),
		"mood", v.Mood.String(),
		"burn rate", formatBps(b.BurnRateBps)+" -> "+formatBps(a.BurnRateBps),
		"redistribution rate", formatBps(b.RedistRateBps)+" -> "+formatBps(a.RedistRateBps),
		"max wallet", formatBps(b.MaxWalletBps)+" -> "+formatBps(a.MaxWalletBps),
		"next mutation", formatTime(a.NextMutationTimestamp),
		"genome", v.GenomeHash.Hex(),
		"new fossils", strconv.Itoa(len(v.NewFossils)),
	)
	for _, f := range v.NewFossils {
		fmt.Fprintf(w, "  #%d %s\n", f.FossilIndex, f.Wallet.Hex())
	}
}

type balanceView struct {
	Wallet  common.Address `json:"wallet"`
	Balance *uint256.Int   `json:"balance"`
}

func (v balanceView) renderText(w io.Writer) {
	kv(w, "wallet", v.Wallet.Hex(), "balance", formatAmount(v.Balance))
}

type exclusionView struct {
	Wallet   common.Address `json:"wallet"`
	Excluded bool           `json:"excluded"`
}

func (v exclusionView) renderText(w io.Writer) {
	kv(w, "wallet", v.Wallet.Hex(), "excluded", strconv.FormatBool(v.Excluded))
}

type lifecycleView struct {
	Lifecycle ir.LifecycleState `json:"lifecycle"`
}

func (v lifecycleView) renderText(w io.Writer) {
	kv(w, "lifecycle", v.Lifecycle.String())
}

type eventsView struct {
	Events []ir.Event `json:"events"`
}

func (v eventsView) renderText(w io.Writer) {
	if len(v.Events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	for _, ev := range v.Events {
		fmt.Fprintf(w, "%6d  %s  %-22s %s\n", ev.Seq, formatTime(ev.Timestamp), ev.Kind, ev.ID)
	}
}

type replayView struct {
	engine.ReplayReport
}

func (v replayView) renderText(w io.Writer) {
	pairs := []string{
		"run", v.RunID,
		"events", strconv.Itoa(v.Events),
		"source digest", v.SourceDigest.Hex(),
		"replay digest", v.ReplayDigest.Hex(),
	}
	if v.Match {
		pairs = append(pairs, "result", "deterministic")
	} else {
		pairs = append(pairs, "result", "DIVERGED")
		if v.DivergedAt != 0 {
			pairs = append(pairs, "diverged at", strconv.FormatInt(v.DivergedAt, 10))
		}
	}
	kv(w, pairs...)
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
