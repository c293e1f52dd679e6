package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Preference selects the symbolic backend.
type Preference string

const (
	PreferNative Preference = "native"
	PreferWasm   Preference = "wasm"
	PreferAuto   Preference = "auto"
)

// ParsePreference maps a configuration value to a Preference. Unknown or
// empty values resolve to PreferAuto; ok reports whether s was recognised.
func ParsePreference(s string) (p Preference, ok bool) {
	switch Preference(strings.ToLower(strings.TrimSpace(s))) {
	case PreferNative:
		return PreferNative, true
	case PreferWasm:
		return PreferWasm, true
	case PreferAuto:
		return PreferAuto, true
	}
	return PreferAuto, false
}

// Constructor builds a Backend. A nil Constructor means the backend is not
// part of this build.
type Constructor func() (Backend, error)

// Backends lists the constructors available to Select.
type Backends struct {
	Native Constructor
	Wasm   Constructor
}

const wasmRemediation = "The wasm backend is reserved and not yet implemented.\n" +
	"Use GIAC_ENGINE=native (or --engine native) with a local Giac installation."

// Select constructs the backend named by pref.
//
// native and wasm never substitute each other. auto tries wasm and falls back
// to native, with a warning, only when the wasm backend cannot be
// constructed at all.
func Select(pref Preference, backends Backends, log logrus.FieldLogger) (Backend, error) {
	switch pref {
	case PreferNative:
		return construct(BackendNative, backends.Native)
	case PreferWasm:
		return construct(BackendWasm, backends.Wasm)
	}
	b, err := construct(BackendWasm, backends.Wasm)
	if err == nil {
		return b, nil
	}
	log.WithError(err).Warn("wasm engine not available, falling back to native")
	return construct(BackendNative, backends.Native)
}

func construct(name string, c Constructor) (Backend, error) {
	if c == nil {
		remediation := ""
		if name == BackendWasm {
			remediation = wasmRemediation
		}
		return nil, &UnavailableError{Backend: name, Remediation: remediation, Err: ErrNotImplemented}
	}
	return c()
}

// Status is a snapshot of the provider for health reporting.
type Status struct {
	Preference Preference `json:"preference"`
	Backend    string     `json:"backend,omitempty"`
	State      string     `json:"state"`
	Reason     string     `json:"reason,omitempty"`
}

// Provider owns the process's single engine Handle. The backend is chosen on
// first use and the choice is kept for the Provider's lifetime.
type Provider struct {
	pref     Preference
	backends Backends
	log      logrus.FieldLogger

	once      sync.Once
	handle    *Handle
	selectErr error
}

// NewProvider returns a Provider that will select according to pref.
func NewProvider(pref Preference, backends Backends, log logrus.FieldLogger) *Provider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Provider{pref: pref, backends: backends, log: log.WithField("component", "engine")}
}

// Preference returns the configured preference.
func (p *Provider) Preference() Preference { return p.pref }

// Handle returns the selected handle, running selection on the first call.
func (p *Provider) Handle() (*Handle, error) {
	p.once.Do(func() {
		b, err := Select(p.pref, p.backends, p.log)
		if err != nil {
			p.selectErr = err
			p.log.WithError(err).WithField("preference", p.pref).Error("engine.select.failed")
			return
		}
		p.log.WithFields(logrus.Fields{"preference": p.pref, "backend": b.Name()}).Info("engine.select")
		p.handle = newHandle(b, p.log)
	})
	return p.handle, p.selectErr
}

// Initialize selects and loads the backend. It is safe to call repeatedly and
// concurrently.
func (p *Provider) Initialize(ctx context.Context) error {
	h, err := p.Handle()
	if err != nil {
		return err
	}
	return h.Initialize(ctx)
}

// IsReady reports whether the selected handle is Ready.
func (p *Provider) IsReady() bool {
	h, err := p.Handle()
	return err == nil && h.IsReady()
}

// Evaluate forwards to the selected handle. Like Handle.Evaluate it panics
// when the engine is not Ready.
func (p *Provider) Evaluate(ctx context.Context, expr string) (string, error) {
	h, err := p.Handle()
	if err != nil {
		panic(fmt.Sprintf("engine: Evaluate with no backend selected: %v", err))
	}
	return h.Evaluate(ctx, expr)
}

// Err returns the reason the engine cannot be used, or nil when it is Ready
// or not yet initialised.
func (p *Provider) Err() error {
	h, err := p.Handle()
	if err != nil {
		return err
	}
	_, reason := h.State()
	return reason
}

// Status reports the current selection and lifecycle state.
func (p *Provider) Status() Status {
	st := Status{Preference: p.pref}
	h, err := p.Handle()
	if err != nil {
		st.State = StateFailed.String()
		st.Reason = err.Error()
		return st
	}
	s, reason := h.State()
	st.Backend = h.Backend()
	st.State = s.String()
	if reason != nil {
		st.Reason = reason.Error()
	}
	return st
}

// Close releases the backend if one was selected.
func (p *Provider) Close() error {
	h, err := p.Handle()
	if err != nil {
		return nil
	}
	return h.Close()
}
