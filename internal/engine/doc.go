// Package engine implements the Thyxel ledger state machine.
//
// The engine owns every state transition: initialization, taxed transfers
// with DNA tracking, epoch mutation with fossilization, and the
// authority-gated lifecycle calls. It composes the pure packages (tax, dna,
// mutation) with the SQLite store.
//
// ATOMICITY:
//
// Each entrypoint runs inside exactly one store transaction. Any error,
// whether a domain rejection (ExceedsMaxWallet, EpochNotEnded) or a storage
// failure, rolls the transaction back. Observers never see a partial
// transfer, a half-advanced epoch or an orphaned fossil.
//
// SERIALIZATION:
//
// A mutex serializes entrypoints and queries. Two racing TriggerMutation
// calls therefore see each other's result: exactly one advances the epoch,
// the other fails with EPOCH_NOT_ENDED.
//
// DETERMINISM:
//
// Wall time is an explicit input read once per entrypoint from the Clock.
// Nothing else is non-deterministic: DNA and genome derivation are pure,
// event IDs are name-based UUIDs, and every query has a total order. The
// event log records each successful command with its inputs, so Replay can
// rebuild an identical ledger into a fresh store.
package engine
