package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/store"
)

// Engine is the ledger state machine.
//
// Thread-safety model:
//   - every exported method is safe from any goroutine
//   - a mutex serializes them, so at most one store transaction is open
//
// INVARIANTS:
//   - every entrypoint writes in exactly one store transaction
//   - an entrypoint that returns an error has written nothing
//   - an entrypoint that succeeds has appended exactly one event
//     (idempotent no-ops append none)
type Engine struct {
	mu     sync.Mutex
	store  *store.Store
	clock  Clock
	logger *slog.Logger
	runIDs RunIDGenerator
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithClock sets the wall clock. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRunIDGenerator sets the generator for replay run IDs.
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// New creates an Engine over the given store.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		clock:  SystemClock{},
		logger: slog.Default(),
		runIDs: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// update runs fn in one serialized write transaction.
func (e *Engine) update(ctx context.Context, fn func(*store.Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Update(ctx, fn)
}

// loadState reads the config slot, mapping a missing slot to
// NOT_INITIALIZED.
func loadState(ctx context.Context, tx *store.Tx) (ir.LedgerState, error) {
	st, err := tx.LoadState(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return ir.LedgerState{}, newError(ErrCodeNotInitialized, "ledger has not been initialized")
	}
	if err != nil {
		return ir.LedgerState{}, err
	}
	return st, nil
}

// appendEvent writes the event for a committed command.
func appendEvent(ctx context.Context, tx *store.Tx, kind ir.EventKind, now int64, payload ir.IRObject) (ir.Event, error) {
	ev, err := tx.AppendEvent(ctx, kind, now, payload)
	if err != nil {
		return ir.Event{}, fmt.Errorf("%s: %w", kind, err)
	}
	return ev, nil
}
