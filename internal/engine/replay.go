package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/store"
)

// Replay and determinism
//
// The event log records every successful command with the inputs needed to
// re-execute it and the wall time it ran at. Replay reads the log in seq
// order, sets a replay clock to each event's timestamp and re-executes the
// command against an empty store through the normal entrypoints. No replay
// mode exists: the same code path that produced the log rebuilds it.
//
// Because DNA updates, genome derivation and event IDs are pure functions
// of their inputs, the rebuilt store must reproduce every event ID and the
// final StateDigest. Any difference means non-determinism crept in.

// ReplayReport summarizes one replay run.
type ReplayReport struct {
	RunID        string      `json:"run_id"`
	Events       int         `json:"events"`
	SourceDigest common.Hash `json:"source_digest"`
	ReplayDigest common.Hash `json:"replay_digest"`
	Match        bool        `json:"match"`

	// DivergedAt is the first seq whose replayed event ID differs, or 0.
	DivergedAt int64 `json:"diverged_at,omitempty"`
}

// Replay re-executes this engine's event log into dst, which must be an
// empty store, and compares the resulting state digests.
//
// A command that fails during replay is returned as an error: the source
// log only records successful commands, so a failure is itself a
// divergence.
func (e *Engine) Replay(ctx context.Context, dst *store.Store) (ReplayReport, error) {
	report := ReplayReport{RunID: e.runIDs.Generate()}

	clock := &replayClock{}
	replica := New(dst, WithClock(clock), WithLogger(e.logger))

	for after := int64(0); ; {
		page, err := e.Events(ctx, after, MaxPageSize)
		if err != nil {
			return report, fmt.Errorf("replay: read events: %w", err)
		}
		for _, ev := range page {
			clock.set(ev.Timestamp)
			if err := replica.apply(ctx, ev); err != nil {
				return report, fmt.Errorf("replay: event %d (%s): %w", ev.Seq, ev.Kind, err)
			}

			got, err := dst.Events(ctx, ev.Seq-1, 1)
			if err != nil {
				return report, fmt.Errorf("replay: read replayed event: %w", err)
			}
			if report.DivergedAt == 0 && (len(got) != 1 || got[0].ID != ev.ID) {
				report.DivergedAt = ev.Seq
			}
			report.Events++
		}
		if len(page) < MaxPageSize {
			break
		}
		after = page[len(page)-1].Seq
	}

	if report.Events == 0 {
		report.Match = true
		return report, nil
	}

	var err error
	if report.SourceDigest, err = e.StateDigest(ctx); err != nil {
		return report, fmt.Errorf("replay: source digest: %w", err)
	}
	if report.ReplayDigest, err = replica.StateDigest(ctx); err != nil {
		return report, fmt.Errorf("replay: replay digest: %w", err)
	}
	report.Match = report.DivergedAt == 0 && report.SourceDigest == report.ReplayDigest

	if report.Match {
		e.logger.Info("replay matched", "run_id", report.RunID, "events", report.Events, "digest", report.SourceDigest.Hex())
	} else {
		e.logger.Warn("replay diverged",
			"run_id", report.RunID,
			"events", report.Events,
			"diverged_at", report.DivergedAt,
			"source_digest", report.SourceDigest.Hex(),
			"replay_digest", report.ReplayDigest.Hex(),
		)
	}
	return report, nil
}

// apply re-executes one recorded command.
func (e *Engine) apply(ctx context.Context, ev ir.Event) error {
	p := ev.Payload
	switch ev.Kind {
	case ir.EventInitialized:
		params, err := ir.InitParamsFromIR(p)
		if err != nil {
			return err
		}
		_, err = e.Initialize(ctx, params)
		return err

	case ir.EventTransfer:
		from, err := payloadAddress(p, "from")
		if err != nil {
			return err
		}
		to, err := payloadAddress(p, "to")
		if err != nil {
			return err
		}
		amount, err := payloadAmount(p, "amount")
		if err != nil {
			return err
		}
		_, err = e.Transfer(ctx, from, to, amount)
		return err

	case ir.EventDNAUpdated:
		wallet, err := payloadAddress(p, "wallet")
		if err != nil {
			return err
		}
		amount, err := payloadAmount(p, "amount")
		if err != nil {
			return err
		}
		_, err = e.UpdateDNA(ctx, wallet, amount)
		return err

	case ir.EventMutation:
		_, err := e.TriggerMutation(ctx)
		return err

	case ir.EventFossilMinted:
		wallet, err := payloadAddress(p, "wallet")
		if err != nil {
			return err
		}
		_, _, err = e.MintFossil(ctx, wallet)
		return err

	case ir.EventExclusionChanged:
		caller, err := payloadAddress(p, "caller")
		if err != nil {
			return err
		}
		wallet, err := payloadAddress(p, "wallet")
		if err != nil {
			return err
		}
		excluded, err := p.Bool("excluded")
		if err != nil {
			return err
		}
		return e.SetExcluded(ctx, caller, wallet, excluded)

	case ir.EventEpochDurationChanged:
		caller, err := payloadAddress(p, "caller")
		if err != nil {
			return err
		}
		days, err := p.Int("days")
		if err != nil {
			return err
		}
		if days < 0 || days > 0xffff {
			return fmt.Errorf("days %d out of range", days)
		}
		_, err = e.SetEpochDuration(ctx, caller, uint16(days))
		return err

	case ir.EventReleasedToWild:
		caller, err := payloadAddress(p, "caller")
		if err != nil {
			return err
		}
		return e.ReleaseToTheWild(ctx, caller)

	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func payloadAddress(p ir.IRObject, key string) (common.Address, error) {
	s, err := p.String(key)
	if err != nil {
		return common.Address{}, err
	}
	return ir.ParseAddress(s)
}

func payloadAmount(p ir.IRObject, key string) (*uint256.Int, error) {
	s, err := p.String(key)
	if err != nil {
		return nil, err
	}
	return ir.ParseAmount(s)
}
