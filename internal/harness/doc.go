// Package harness runs conformance scenarios against the ledger engine.
//
// A scenario drives a fresh in-memory engine through a sequence of actions,
// checks each completion, evaluates assertions on the trace and the final
// tables, and finally replays the event log into a second store to prove
// the run was deterministic.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	genesis: genesis/default.cue      # optional, relative to this file
//	start: 1700000000                 # optional clock start
//	wallets:
//	  alice: "0x00000000000000000000000000000000000a11ce"
//	setup:
//	  - action: transfer
//	    args: { from: authority, to: alice, amount: "1000000" }
//	flow:
//	  - invoke: transfer
//	    args: { from: alice, to: bob, amount: "500000" }
//	    expect:
//	      case: EXCEEDS_MAX_WALLET
//	assertions:
//	  - type: final_state
//	    table: balances
//	    where: { wallet: alice }
//	    expect: { amount: "1000000" }
//
// # Actions
//
// initialize, transfer, update_dna, mutate, mint_fossil, set_excluded,
// set_epoch_duration and release call the engine entrypoint of the same
// name. advance moves the scenario clock by days and/or seconds.
//
// A completion's case is "ok" or the engine error code. Amounts in args
// and results are decimal strings.
//
// # Assertion Types
//
//   - trace_contains: Verifies an action appears in the trace with matching args
//   - trace_order: Verifies actions appear in specified order
//   - trace_count: Verifies an action appears exactly N times
//   - final_state: Queries a state table and verifies expected values
//   - supply_conserved: Verifies balances sum to the recorded total supply
//
// # Deterministic Testing
//
// Every run uses a manual clock, a fixed replay run ID and an in-memory
// SQLite database, so traces are byte-identical across runs and can be
// compared against golden files.
package harness
