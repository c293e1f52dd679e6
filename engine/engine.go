// Package engine manages the symbolic computation backend: which
// implementation serves the process, its one-time initialisation, and
// serialised access to it.
//
// A Provider is created once at start-up and handed to everything that needs
// the engine. It selects a Backend according to a Preference, wraps it in a
// Handle and drives the Handle through
//
//	Uninitialized -> Initializing -> Ready | Failed(reason)
//
// Failed is terminal for the Handle. Calling Evaluate on a Handle that is not
// Ready is a programming error and panics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Backend names.
const (
	BackendNative = "native"
	BackendWasm   = "wasm"
)

// Backend is one concrete symbolic engine. Implementations need not be safe
// for concurrent use; Handle serialises calls to Eval.
type Backend interface {
	Name() string
	// Load performs the expensive one-time start-up of the engine.
	Load(ctx context.Context) error
	// Eval evaluates expr and returns the engine's raw textual output.
	Eval(ctx context.Context, expr string) (string, error)
	Close() error
}

// State is the lifecycle state of a Handle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handle wraps a Backend with lifecycle state and a mutual-exclusion
// discipline for evaluation.
type Handle struct {
	backend Backend
	log     logrus.FieldLogger

	mu     sync.Mutex
	state  State
	reason error

	loads  singleflight.Group
	evalMu sync.Mutex
}

func newHandle(b Backend, log logrus.FieldLogger) *Handle {
	return &Handle{backend: b, log: log.WithField("backend", b.Name())}
}

// Backend returns the name of the wrapped backend.
func (h *Handle) Backend() string { return h.backend.Name() }

// State returns the current state and, for StateFailed, the reason.
func (h *Handle) State() (State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.reason
}

// IsReady reports whether Evaluate may be called.
func (h *Handle) IsReady() bool {
	s, _ := h.State()
	return s == StateReady
}

// Initialize loads the backend once. It returns nil immediately when the
// handle is Ready and the stored reason when it is Failed. Concurrent callers
// share one load and all observe its outcome. The load is detached from the
// caller's cancellation so one impatient caller cannot fail the handle for
// everyone.
func (h *Handle) Initialize(ctx context.Context) error {
	if done, err := h.terminal(); done {
		return err
	}
	_, err, shared := h.loads.Do("load", func() (any, error) {
		// A flight that finished between terminal() and Do already decided.
		if done, err := h.terminal(); done {
			return nil, err
		}
		h.setState(StateInitializing, nil)
		h.log.Debug("engine.init.start")

		if err := h.backend.Load(context.WithoutCancel(ctx)); err != nil {
			h.setState(StateFailed, err)
			h.log.WithError(err).Error("engine.init.failed")
			return nil, err
		}
		h.setState(StateReady, nil)
		h.log.Info("engine.init.ready")
		return nil, nil
	})
	if shared {
		h.log.Debug("engine.init.shared")
	}
	return err
}

func (h *Handle) terminal() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateReady:
		return true, nil
	case StateFailed:
		return true, h.reason
	}
	return false, nil
}

func (h *Handle) setState(s State, reason error) {
	h.mu.Lock()
	h.state = s
	h.reason = reason
	h.mu.Unlock()
}

// Evaluate submits expr to the backend. Calls are serialised. It panics when
// the handle is not Ready.
func (h *Handle) Evaluate(ctx context.Context, expr string) (string, error) {
	if s, _ := h.State(); s != StateReady {
		panic(fmt.Sprintf("engine: Evaluate on %s backend in state %s", h.backend.Name(), s))
	}
	h.evalMu.Lock()
	defer h.evalMu.Unlock()

	out, err := h.backend.Eval(ctx, expr)
	if err != nil {
		var evalErr *EvalError
		if errors.As(err, &evalErr) {
			return "", err
		}
		return "", &EvalError{Backend: h.backend.Name(), Expression: expr, Message: err.Error(), Err: err}
	}
	return out, nil
}

// Close releases the backend.
func (h *Handle) Close() error {
	h.evalMu.Lock()
	defer h.evalMu.Unlock()
	return h.backend.Close()
}
