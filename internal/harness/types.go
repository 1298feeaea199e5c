package harness

import (
	"github.com/roach88/thyxel/internal/engine"
	"github.com/roach88/thyxel/internal/ir"
)

// Trace event types.
const (
	TraceInvocation = "invocation"
	TraceCompletion = "completion"
)

// CaseOK is the output case of a step the engine accepted. Rejected steps
// complete with the engine error code instead (e.g. "EXCEEDS_MAX_WALLET").
const CaseOK = "ok"

// TraceEvent is one entry of a scenario trace: either the invocation of an
// action or its completion.
type TraceEvent struct {
	Type      string      `json:"type"` // "invocation" or "completion"
	Action    string      `json:"action,omitempty"`
	Args      ir.IRObject `json:"args,omitempty"`
	Case      string      `json:"case,omitempty"`
	Result    ir.IRObject `json:"result,omitempty"`
	Seq       int64       `json:"seq"`
	Timestamp int64       `json:"timestamp"`
}

// ToIR converts the event for canonical serialization.
func (e TraceEvent) ToIR() ir.IRObject {
	obj := ir.IRObject{
		"type":      ir.IRString(e.Type),
		"seq":       ir.IRInt(e.Seq),
		"timestamp": ir.IRInt(e.Timestamp),
	}
	if e.Action != "" {
		obj["action"] = ir.IRString(e.Action)
	}
	if e.Args != nil {
		obj["args"] = e.Args
	}
	if e.Case != "" {
		obj["case"] = ir.IRString(e.Case)
	}
	if e.Result != nil {
		obj["result"] = e.Result
	}
	return obj
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held and the
	// replayed event log reproduced the final state.
	Pass bool `json:"pass"`

	// Trace contains every invocation and completion in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Replay is the determinism audit run after the flow.
	Replay *engine.ReplayReport `json:"replay,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds an invocation to the trace.
func (r *Result) AddInvocationTrace(action string, args ir.IRObject, seq, ts int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      TraceInvocation,
		Action:    action,
		Args:      args,
		Seq:       seq,
		Timestamp: ts,
	})
}

// AddCompletionTrace adds a completion to the trace.
func (r *Result) AddCompletionTrace(action, outputCase string, result ir.IRObject, seq, ts int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      TraceCompletion,
		Action:    action,
		Case:      outputCase,
		Result:    result,
		Seq:       seq,
		Timestamp: ts,
	})
}
