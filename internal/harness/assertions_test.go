package harness

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/store"
)

func transferArgs(from, to, amount string) ir.IRObject {
	return ir.IRObject{
		"from":   ir.IRString(from),
		"to":     ir.IRString(to),
		"amount": ir.IRString(amount),
	}
}

func TestAssertTraceContains_Found(t *testing.T) {
	trace := []TraceEvent{
		{Type: TraceInvocation, Action: ActionTransfer, Args: transferArgs("alice", "bob", "500"), Seq: 1},
		{Type: TraceCompletion, Action: ActionTransfer, Case: CaseOK, Seq: 2},
	}

	assertion := Assertion{
		Type:   AssertTraceContains,
		Action: ActionTransfer,
		Args:   map[string]interface{}{"from": "alice"},
	}

	err := assertTraceContains(trace, assertion)
	assert.NoError(t, err)
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	trace := []TraceEvent{
		{Type: TraceInvocation, Action: ActionTransfer, Args: transferArgs("alice", "bob", "500"), Seq: 1},
		{Type: TraceCompletion, Action: ActionTransfer, Case: CaseOK, Seq: 2},
	}

	assertion := Assertion{
		Type:   AssertTraceContains,
		Action: ActionMutate,
	}

	err := assertTraceContains(trace, assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "trace_contains", assertErr.Type)
	assert.Contains(t, assertErr.Expected, ActionMutate)
	assert.Equal(t, "not found in trace", assertErr.Actual)
}

func TestAssertTraceContains_WrongArgs(t *testing.T) {
	trace := []TraceEvent{
		{Type: TraceInvocation, Action: ActionTransfer, Args: transferArgs("alice", "bob", "500"), Seq: 1},
	}

	assertion := Assertion{
		Type:   AssertTraceContains,
		Action: ActionTransfer,
		Args:   map[string]interface{}{"amount": "501"},
	}

	err := assertTraceContains(trace, assertion)
	require.Error(t, err)
}

func TestAssertTraceContains_IgnoresCompletions(t *testing.T) {
	trace := []TraceEvent{
		{Type: TraceCompletion, Action: ActionMutate, Case: CaseOK, Seq: 2},
	}

	err := assertTraceContains(trace, Assertion{Type: AssertTraceContains, Action: ActionMutate})
	require.Error(t, err)
}

func TestAssertTraceOrder_Correct(t *testing.T) {
	trace := []TraceEvent{
		{Type: TraceInvocation, Action: ActionTransfer, Seq: 1},
		{Type: TraceCompletion, Action: ActionTransfer, Seq: 2},
		{Type: TraceInvocation, Action: ActionAdvance, Seq: 3},
		{Type: TraceCompletion, Action: ActionAdvance, Seq: 4},
		{Type: TraceInvocation, Action: ActionMutate, Seq: 5},
		{Type: TraceCompletion, Action: ActionMutate, Seq: 6},
	}

	assertion := Assertion{
		Type:    AssertTraceOrder,
		Actions: []string{ActionTransfer, ActionMutate},
	}

	assert.NoError(t, assertTraceOrder(trace, assertion))
}

func TestAssertTraceOrder_WrongOrder(t *testing.T) {
	trace := []TraceEvent{
		{Type: TraceInvocation, Action: ActionMutate, Seq: 1},
		{Type: TraceInvocation, Action: ActionTransfer, Seq: 3},
	}

	assertion := Assertion{
		Type:    AssertTraceOrder,
		Actions: []string{ActionTransfer, ActionMutate},
	}

	err := assertTraceOrder(trace, assertion)
	require.Error(t, err)
	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Contains(t, assertErr.Actual, "should be before")
}

func TestAssertTraceOrder_Missing(t *testing.T) {
	trace := []TraceEvent{
		{Type: TraceInvocation, Action: ActionTransfer, Seq: 1},
	}

	err := assertTraceOrder(trace, Assertion{
		Type:    AssertTraceOrder,
		Actions: []string{ActionTransfer, ActionRelease},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: release")
}

func TestAssertTraceCount(t *testing.T) {
	trace := []TraceEvent{
		{Type: TraceInvocation, Action: ActionMutate, Seq: 1},
		{Type: TraceCompletion, Action: ActionMutate, Seq: 2},
		{Type: TraceInvocation, Action: ActionMutate, Seq: 3},
		{Type: TraceCompletion, Action: ActionMutate, Seq: 4},
	}

	assert.NoError(t, assertTraceCount(trace, Assertion{Type: AssertTraceCount, Action: ActionMutate, Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Type: AssertTraceCount, Action: ActionRelease, Count: 0}))

	err := assertTraceCount(trace, Assertion{Type: AssertTraceCount, Action: ActionMutate, Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func TestMatchArgs_SubsetSemantics(t *testing.T) {
	actual := ir.IRObject{
		"wallet":   ir.IRString("alice"),
		"excluded": ir.IRBool(true),
		"days":     ir.IRInt(14),
	}

	tests := []struct {
		name     string
		expected map[string]interface{}
		want     bool
	}{
		{"empty expected", nil, true},
		{"string subset", map[string]interface{}{"wallet": "alice"}, true},
		{"bool", map[string]interface{}{"excluded": true}, true},
		{"int from yaml", map[string]interface{}{"days": 14}, true},
		{"wrong value", map[string]interface{}{"days": 7}, false},
		{"missing key", map[string]interface{}{"caller": "authority"}, false},
		{"type mismatch", map[string]interface{}{"days": "14"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchArgs(actual, tt.expected))
		})
	}
}

func TestBuildWhereClause_MultipleKeys_SortedDeterministic(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]interface{}{
		"wallet": "0xabc",
		"id":     1,
	})
	require.NoError(t, err)
	assert.Equal(t, "id = ? AND wallet = ?", sql)
	assert.Equal(t, []interface{}{1, "0xabc"}, args)
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	_, _, err := buildWhereClause(map[string]interface{}{
		"wallet; DROP TABLE balances": "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestResolveWhere_Aliases(t *testing.T) {
	alice := common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	where := resolveWhere(map[string]interface{}{
		"wallet": "alice",
		"id":     1,
		"other":  "bob",
	}, map[string]common.Address{"alice": alice})

	assert.Equal(t, "0x00000000000000000000000000000000000a11ce", where["wallet"])
	assert.Equal(t, 1, where["id"])
	assert.Equal(t, "bob", where["other"], "unknown aliases pass through")
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("490000", "490000"))
	assert.True(t, stateValuesEqual("490000", []byte("490000")))
	assert.False(t, stateValuesEqual("490000", "490001"))
	assert.True(t, stateValuesEqual(2, int64(2)))
	assert.False(t, stateValuesEqual(2, "2"))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual(nil, "x"))
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     "trace_count",
		Expected: "2 occurrences of mutate",
		Actual:   "1 occurrences",
		Trace: []TraceEvent{
			{Type: TraceInvocation, Action: ActionMutate, Seq: 1},
			{Type: TraceCompletion, Action: ActionMutate, Seq: 2},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 2 occurrences of mutate")
	assert.Contains(t, msg, "[1] mutate")
	assert.NotContains(t, msg, "[2]", "completions are not listed")
}

// Integration tests for state assertions with a real ledger.

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedLedger(t *testing.T, st *store.Store, supply string, balances map[common.Address]string) {
	t.Helper()
	ctx := context.Background()
	err := st.Update(ctx, func(tx *store.Tx) error {
		state := ir.LedgerState{
			Authority:   common.HexToAddress("0x0a0001"),
			Reserve:     ir.DefaultReserveAddress,
			TotalSupply: ir.MustAmount(supply),
			Genome: ir.Genome{
				BurnRateBps:       100,
				RedistRateBps:     100,
				MaxWalletBps:      500,
				EpochDurationDays: 7,
			},
			Stats: ir.NewEpochStats(),
		}
		if err := tx.InsertState(ctx, state); err != nil {
			return err
		}
		for w, amount := range balances {
			if err := tx.SetBalance(ctx, w, ir.MustAmount(amount)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAssertFinalState_RowFound_Pass(t *testing.T) {
	st := setupTestStore(t)
	alice := common.HexToAddress("0x0a11ce")
	seedLedger(t, st, "1000", map[common.Address]string{alice: "1000"})

	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "balances",
		Where:  map[string]interface{}{"wallet": "alice"},
		Expect: map[string]interface{}{"amount": "1000"},
	}

	err := assertFinalState(context.Background(), st, map[string]common.Address{"alice": alice}, assertion)
	assert.NoError(t, err)
}

func TestAssertFinalState_RowNotFound_Fail(t *testing.T) {
	st := setupTestStore(t)

	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "balances",
		Where:  map[string]interface{}{"wallet": "0x0000000000000000000000000000000000000b0b"},
		Expect: map[string]interface{}{"amount": "1"},
	}

	err := assertFinalState(context.Background(), st, nil, assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "final_state", assertErr.Type)
	assert.Contains(t, assertErr.Actual, "row not found")
}

func TestAssertFinalState_ValueMismatch_Fail(t *testing.T) {
	st := setupTestStore(t)
	seedLedger(t, st, "1000", nil)

	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "config",
		Where:  map[string]interface{}{"id": 1},
		Expect: map[string]interface{}{"burn_rate_bps": 200},
	}

	err := assertFinalState(context.Background(), st, nil, assertion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "burn_rate_bps")
}

func TestAssertFinalState_InvalidTableName(t *testing.T) {
	assertion := Assertion{
		Type:  AssertFinalState,
		Table: "balances; DROP TABLE balances; --",
	}

	err := assertFinalState(context.Background(), nil, nil, assertion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestAssertSupplyConserved(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")

	t.Run("balanced", func(t *testing.T) {
		st := setupTestStore(t)
		seedLedger(t, st, "1000", map[common.Address]string{a: "600", b: "400"})
		assert.NoError(t, assertSupplyConserved(context.Background(), st))
	})

	t.Run("leaked", func(t *testing.T) {
		st := setupTestStore(t)
		seedLedger(t, st, "1000", map[common.Address]string{a: "600", b: "399"})
		err := assertSupplyConserved(context.Background(), st)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "balances sum to 999")
	})

	t.Run("uninitialized", func(t *testing.T) {
		st := setupTestStore(t)
		require.Error(t, assertSupplyConserved(context.Background(), st))
	})
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	st := setupTestStore(t)
	seedLedger(t, st, "10", map[common.Address]string{common.HexToAddress("0x01"): "10"})

	result := NewResult()
	result.AddInvocationTrace(ActionMutate, ir.IRObject{}, 1, 0)

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Action: ActionMutate, Count: 1},
		{Type: AssertTraceCount, Action: ActionMutate, Count: 5},
		{Type: AssertSupplyConserved},
		{Type: "bogus"},
	}, &AssertionContext{Store: st, Ctx: context.Background()})

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], "unknown assertion type")
}

func TestEvaluateAssertions_StateNeedsStore(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "balances", Expect: map[string]interface{}{"amount": "1"}},
		{Type: AssertSupplyConserved},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "requires database context")
}
