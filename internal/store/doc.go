// Package store provides SQLite-backed durable storage for the Thyxel ledger.
//
// The store holds:
//   - config: the single ledger slot (lifecycle, authority, supply, genome,
//     epoch accumulator)
//   - balances and wallet_dna, keyed by lowercase hex wallet
//   - exclusions: the tax/cap exemption set
//   - fossils: the append-only archive, UNIQUE(wallet)
//   - events: the append-only command log used by replay
//
// # Transactions
//
// Every state transition runs inside one Tx obtained from Store.Update. Any
// error returned by the callback rolls the whole transaction back, so a
// rejected transfer or mutation leaves no partial writes.
//
// # Deterministic Query Results
//
// Every multi-row query has a total ORDER BY (seq, fossil_index or wallet)
// so replays and golden traces see identical results.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Unsigned 64-bit counters are stored as their int64 bit pattern, since the
// SQLite driver rejects uint64 arguments with the high bit set.
package store
