package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/thyxel/internal/compiler"
	"github.com/roach88/thyxel/internal/engine"
	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/store"
	"github.com/roach88/thyxel/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a real ledger engine with a manual clock.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	clock   *testutil.ManualClock
	logger  *slog.Logger
	wallets map[string]common.Address
	aliases map[common.Address]string
	seq     int64
}

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger routes engine and harness logs to l. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and engine
// 2. Initialize from the genesis file, if any
// 3. Execute setup steps (must succeed)
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions
// 6. Replay the event log into a second store and compare digests
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := scenario.Start
	if start == 0 {
		start = DefaultStart
	}
	clock := testutil.NewManualClock(start)

	eng := engine.New(st,
		engine.WithClock(clock),
		engine.WithLogger(cfg.logger),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.Name)),
	)

	h := &Harness{
		store:   st,
		engine:  eng,
		clock:   clock,
		logger:  cfg.logger,
		wallets: make(map[string]common.Address, len(scenario.Wallets)),
		aliases: make(map[common.Address]string, len(scenario.Wallets)),
	}
	if err := h.registerWallets(scenario.Wallets); err != nil {
		return nil, err
	}

	ctx := context.Background()

	if scenario.Genesis != "" {
		params, err := compiler.LoadGenesisFile(scenario.Genesis)
		if err != nil {
			return nil, fmt.Errorf("failed to load genesis: %w", err)
		}
		if _, err := eng.Initialize(ctx, *params); err != nil {
			return nil, fmt.Errorf("failed to initialize from genesis: %w", err)
		}
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store:   st,
		Ctx:     ctx,
		Wallets: h.wallets,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	if err := h.verifyReplay(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to replay: %w", err)
	}

	return result, nil
}

// registerWallets resolves aliases in sorted order so that two aliases for
// one address always map back to the same name.
func (h *Harness) registerWallets(wallets map[string]string) error {
	names := make([]string, 0, len(wallets))
	for name := range wallets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		addr, err := ir.ParseAddress(wallets[name])
		if err != nil {
			return fmt.Errorf("wallet %q: %w", name, err)
		}
		h.wallets[name] = addr
		if _, taken := h.aliases[addr]; !taken {
			h.aliases[addr] = name
		}
	}
	return nil
}

func (h *Harness) nextSeq() int64 {
	h.seq++
	return h.seq
}

// executeSetup runs all setup steps. Any rejection aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep, result *Result) error {
	for i, step := range setup {
		outputCase, res, err := h.step(ctx, step.Action, step.Args, result)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if outputCase != CaseOK {
			return fmt.Errorf("setup step %d (%s): rejected with %s", i, step.Action, outputCase)
		}

		h.logger.Info("setup step completed",
			"step", i,
			"action", step.Action,
			"result", res,
		)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
// A step without an expect clause must succeed.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		outputCase, res, err := h.step(ctx, step.Invoke, step.Args, result)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		expectedCase := CaseOK
		if step.Expect != nil {
			expectedCase = step.Expect.Case
		}
		if outputCase != expectedCase {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %q, got %q",
				i, step.Invoke, expectedCase, outputCase))
		} else if step.Expect != nil && step.Expect.Result != nil {
			for _, msg := range matchResult(res, step.Expect.Result) {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"expected_case", expectedCase,
			"actual_case", outputCase,
		)
	}

	return nil
}

// step traces one invocation, runs it and traces its completion. Engine
// rejections become the completion's case; anything else is returned as a
// harness error.
func (h *Harness) step(ctx context.Context, action string, rawArgs map[string]interface{}, result *Result) (string, ir.IRObject, error) {
	args, err := convertArgsToIRObject(rawArgs)
	if err != nil {
		return "", nil, fmt.Errorf("failed to convert args: %w", err)
	}

	result.AddInvocationTrace(action, args, h.nextSeq(), h.clock.Now())

	res, err := h.dispatch(ctx, action, args)
	outputCase := CaseOK
	if err != nil {
		code := engine.CodeOf(err)
		if code == "" {
			return "", nil, fmt.Errorf("%s: %w", action, err)
		}
		outputCase = string(code)
		res = nil
	}

	result.AddCompletionTrace(action, outputCase, res, h.nextSeq(), h.clock.Now())
	return outputCase, res, nil
}

// matchResult compares expected fields against the completion result
// (subset semantics) and returns one message per mismatch.
func matchResult(actual ir.IRObject, expected map[string]interface{}) []string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, key := range keys {
		want, err := convertToIRValue(expected[key])
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("result.%s: %v", key, err))
			continue
		}
		got, ok := actual[key]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("result.%s: missing", key))
			continue
		}
		if !reflect.DeepEqual(got, want) {
			msgs = append(msgs, fmt.Sprintf("result.%s: expected %v, got %v", key, want, got))
		}
	}
	return msgs
}

// verifyReplay re-executes the event log into a fresh store. A digest
// mismatch fails the scenario.
func (h *Harness) verifyReplay(ctx context.Context, result *Result) error {
	dst, err := store.Open(":memory:")
	if err != nil {
		return fmt.Errorf("failed to create replay store: %w", err)
	}
	defer dst.Close()

	report, err := h.engine.Replay(ctx, dst)
	if err != nil {
		return err
	}
	result.Replay = &report
	if !report.Match {
		result.AddError(fmt.Sprintf("replay diverged at seq %d: source digest %s, replay digest %s",
			report.DivergedAt, report.SourceDigest.Hex(), report.ReplayDigest.Hex()))
	}
	return nil
}

// convertArgsToIRObject converts a map[string]interface{} to ir.IRObject.
// This handles YAML-parsed values and converts them to proper IRValue types.
func convertArgsToIRObject(args map[string]interface{}) (ir.IRObject, error) {
	if args == nil {
		return ir.IRObject{}, nil
	}

	result := make(ir.IRObject)
	for key, val := range args {
		irVal, err := convertToIRValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = irVal
	}
	return result, nil
}

// convertToIRValue converts a YAML-parsed value to an IRValue.
// Returns an error for null values since they are forbidden in canonical JSON.
func convertToIRValue(val interface{}) (ir.IRValue, error) {
	if val == nil {
		return nil, fmt.Errorf("null values are forbidden in IR (canonical JSON does not support null)")
	}

	switch v := val.(type) {
	case string:
		return ir.IRString(v), nil
	case int:
		return ir.IRInt(int64(v)), nil
	case int64:
		return ir.IRInt(v), nil
	case uint64:
		return nil, fmt.Errorf("integer %d overflows int64 (quote large amounts)", v)
	case float64:
		if v == float64(int64(v)) {
			return ir.IRInt(int64(v)), nil
		}
		return nil, fmt.Errorf("floats are forbidden in IR: %v", v)
	case bool:
		return ir.IRBool(v), nil
	case []interface{}:
		arr := make(ir.IRArray, len(v))
		for i, elem := range v {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]interface{}:
		obj, err := convertArgsToIRObject(v)
		if err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
