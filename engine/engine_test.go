package engine_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/axiom-mcp/engine"
)

// ============================================================
// stub backend
// ============================================================

type stubBackend struct {
	name    string
	loadErr error
	release chan struct{}
	started chan struct{}
	eval    func(expr string) (string, error)

	loads       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Load(context.Context) error {
	if s.loads.Add(1) == 1 && s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	return s.loadErr
}

func (s *stubBackend) Eval(_ context.Context, expr string) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxInFlight.Load()
		if n <= m || s.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if s.eval != nil {
		return s.eval(expr)
	}
	return expr, nil
}

func (s *stubBackend) Close() error { return nil }

func nativeStub(b *stubBackend, calls *atomic.Int32) engine.Constructor {
	return func() (engine.Backend, error) {
		if calls != nil {
			calls.Add(1)
		}
		return b, nil
	}
}

func quietLogger() logrus.FieldLogger {
	l, _ := logtest.NewNullLogger()
	return l
}

// ============================================================
// Preference + Select
// ============================================================

func TestParsePreference(t *testing.T) {
	cases := []struct {
		in   string
		want engine.Preference
		ok   bool
	}{
		{"native", engine.PreferNative, true},
		{" WASM ", engine.PreferWasm, true},
		{"auto", engine.PreferAuto, true},
		{"", engine.PreferAuto, false},
		{"gpu", engine.PreferAuto, false},
	}
	for _, c := range cases {
		got, ok := engine.ParsePreference(c.in)
		assert.Equal(t, c.want, got, c.in)
		assert.Equal(t, c.ok, ok, c.in)
	}
}

func TestSelect_WasmNotImplemented_NoFallback(t *testing.T) {
	var calls atomic.Int32
	_, err := engine.Select(engine.PreferWasm, engine.Backends{Native: nativeStub(&stubBackend{name: "native"}, &calls)}, quietLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNotImplemented)
	assert.Contains(t, err.Error(), "not yet implemented")

	var unavailable *engine.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, engine.BackendWasm, unavailable.Backend)
	assert.Zero(t, calls.Load(), "native must not be constructed for an explicit wasm request")
}

func TestSelect_Native(t *testing.T) {
	b := &stubBackend{name: engine.BackendNative}
	got, err := engine.Select(engine.PreferNative, engine.Backends{Native: nativeStub(b, nil)}, quietLogger())
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestSelect_NativeMissingBinary(t *testing.T) {
	ctor := engine.NewGiac(engine.GiacConfig{Binary: "axiom-no-such-giac-binary"}, quietLogger())
	_, err := engine.Select(engine.PreferNative, engine.Backends{Native: ctor}, quietLogger())
	require.Error(t, err)

	var unavailable *engine.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, engine.BackendNative, unavailable.Backend)
	assert.Equal(t, "giac", unavailable.MissingDependency)
	assert.Contains(t, unavailable.Remediation, "Linux")
	assert.Contains(t, unavailable.Remediation, "macOS")
	assert.Contains(t, unavailable.Remediation, "Windows")
	assert.Contains(t, err.Error(), "giac not installed")
}

func TestSelect_AutoFallsBackWithWarning(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	b := &stubBackend{name: engine.BackendNative}
	got, err := engine.Select(engine.PreferAuto, engine.Backends{Native: nativeStub(b, nil)}, logger)
	require.NoError(t, err)
	assert.Same(t, b, got)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestSelect_AutoPrefersWasmWhenConstructible(t *testing.T) {
	wasm := &stubBackend{name: engine.BackendWasm}
	var nativeCalls atomic.Int32
	got, err := engine.Select(engine.PreferAuto, engine.Backends{
		Native: nativeStub(&stubBackend{name: engine.BackendNative}, &nativeCalls),
		Wasm:   func() (engine.Backend, error) { return wasm, nil },
	}, quietLogger())
	require.NoError(t, err)
	assert.Same(t, wasm, got)
	assert.Zero(t, nativeCalls.Load())
}

func TestRemediation_HostFirst(t *testing.T) {
	r := engine.GiacRemediation("darwin", "giac")
	assert.Less(t, strings.Index(r, "macOS"), strings.Index(r, "Linux"))
	assert.Contains(t, r, `"giac"`)
}

// ============================================================
// Provider
// ============================================================

func TestProvider_AutoDecisionIsStable(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	var calls atomic.Int32
	p := engine.NewProvider(engine.PreferAuto, engine.Backends{Native: nativeStub(&stubBackend{name: engine.BackendNative}, &calls)}, logger)

	h1, err := p.Handle()
	require.NoError(t, err)
	h2, err := p.Handle()
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.Equal(t, int32(1), calls.Load())

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestProvider_SelectionFailureIsReported(t *testing.T) {
	p := engine.NewProvider(engine.PreferWasm, engine.Backends{}, quietLogger())
	err := p.Initialize(context.Background())
	assert.ErrorIs(t, err, engine.ErrNotImplemented)
	assert.False(t, p.IsReady())

	st := p.Status()
	assert.Equal(t, "failed", st.State)
	assert.Contains(t, st.Reason, "not yet implemented")
	assert.NoError(t, p.Close())
}

func TestProvider_InitializeAndEvaluate(t *testing.T) {
	b := &stubBackend{name: engine.BackendNative, eval: func(expr string) (string, error) { return "cos(x)", nil }}
	p := engine.NewProvider(engine.PreferNative, engine.Backends{Native: nativeStub(b, nil)}, quietLogger())

	assert.Equal(t, "uninitialized", p.Status().State)
	require.NoError(t, p.Initialize(context.Background()))
	assert.True(t, p.IsReady())
	assert.NoError(t, p.Err())

	out, err := p.Evaluate(context.Background(), "diff(sin(x),x)")
	require.NoError(t, err)
	assert.Equal(t, "cos(x)", out)
	assert.Equal(t, engine.Status{Preference: engine.PreferNative, Backend: engine.BackendNative, State: "ready"}, p.Status())
}

// ============================================================
// Handle lifecycle
// ============================================================

func TestHandle_InitializeIsIdempotent(t *testing.T) {
	b := &stubBackend{name: engine.BackendNative}
	p := engine.NewProvider(engine.PreferNative, engine.Backends{Native: nativeStub(b, nil)}, quietLogger())

	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.Initialize(context.Background()))

	h, _ := p.Handle()
	state, reason := h.State()
	assert.Equal(t, engine.StateReady, state)
	assert.NoError(t, reason)
	assert.Equal(t, int32(1), b.loads.Load())
}

func TestHandle_ConcurrentInitializeLoadsOnce(t *testing.T) {
	b := &stubBackend{name: engine.BackendNative, release: make(chan struct{}), started: make(chan struct{})}
	p := engine.NewProvider(engine.PreferNative, engine.Backends{Native: nativeStub(b, nil)}, quietLogger())

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Initialize(context.Background())
		}(i)
	}

	<-b.started
	h, _ := p.Handle()
	state, _ := h.State()
	assert.Equal(t, engine.StateInitializing, state)
	close(b.release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), b.loads.Load())
	assert.True(t, h.IsReady())
}

func TestHandle_FailedIsTerminal(t *testing.T) {
	loadErr := &engine.UnavailableError{Backend: engine.BackendNative, MissingDependency: "giac", Remediation: "install giac"}
	b := &stubBackend{name: engine.BackendNative, loadErr: loadErr}
	p := engine.NewProvider(engine.PreferNative, engine.Backends{Native: nativeStub(b, nil)}, quietLogger())

	err1 := p.Initialize(context.Background())
	err2 := p.Initialize(context.Background())
	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, int32(1), b.loads.Load())

	h, _ := p.Handle()
	state, reason := h.State()
	assert.Equal(t, engine.StateFailed, state)
	assert.Same(t, loadErr, reason)
	assert.Same(t, loadErr, p.Err())
}

func TestHandle_CancelledCallerDoesNotFailLoad(t *testing.T) {
	b := &stubBackend{name: engine.BackendNative}
	p := engine.NewProvider(engine.PreferNative, engine.Backends{Native: nativeStub(b, nil)}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Initialize(ctx))
	assert.True(t, p.IsReady())
}

func TestHandle_EvaluateBeforeReadyPanics(t *testing.T) {
	b := &stubBackend{name: engine.BackendNative}
	p := engine.NewProvider(engine.PreferNative, engine.Backends{Native: nativeStub(b, nil)}, quietLogger())
	h, err := p.Handle()
	require.NoError(t, err)

	assert.PanicsWithValue(t, "engine: Evaluate on native backend in state uninitialized", func() {
		_, _ = h.Evaluate(context.Background(), "1+1")
	})
}

func TestHandle_EvaluateIsSerialized(t *testing.T) {
	b := &stubBackend{name: engine.BackendNative, eval: func(expr string) (string, error) {
		time.Sleep(2 * time.Millisecond)
		return expr, nil
	}}
	p := engine.NewProvider(engine.PreferNative, engine.Backends{Native: nativeStub(b, nil)}, quietLogger())
	require.NoError(t, p.Initialize(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := p.Evaluate(context.Background(), fmt.Sprintf("%d+1", i))
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("%d+1", i), out)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), b.maxInFlight.Load())
}

func TestHandle_EvaluateWrapsBackendErrors(t *testing.T) {
	cause := errors.New("Invalid syntax")
	b := &stubBackend{name: engine.BackendNative, eval: func(string) (string, error) { return "", cause }}
	p := engine.NewProvider(engine.PreferNative, engine.Backends{Native: nativeStub(b, nil)}, quietLogger())
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Evaluate(context.Background(), "int(x^2")
	var evalErr *engine.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "int(x^2", evalErr.Expression)
	assert.Equal(t, "Invalid syntax", evalErr.Error())
	assert.ErrorIs(t, err, cause)
}

// ============================================================
// Giac backend
// ============================================================

func TestParseGiacOutput(t *testing.T) {
	out, failure := engine.ParseGiacOutput("// Giac 1.9\n\n1>> cos(x)\n", "// Using locale C\n")
	assert.Equal(t, "cos(x)", out)
	assert.Empty(t, failure)

	out, failure = engine.ParseGiacOutput("Step 1: apply chain rule\ncos(x)\n", "")
	assert.Equal(t, "Step 1: apply chain rule\ncos(x)", out)
	assert.Empty(t, failure)

	_, failure = engine.ParseGiacOutput("\"Error: Bad Argument Value\"\n", "")
	assert.Equal(t, "Error: Bad Argument Value", failure)

	_, failure = engine.ParseGiacOutput("", "Syntax error line 1 at end of input\n")
	assert.Equal(t, "Syntax error line 1 at end of input", failure)
}

const fakeGiac = `#!/bin/sh
read expr
case "$expr" in
  "1+1") echo "// Giac fake"; echo "2" ;;
  "bad(") echo "Syntax error line 1 at end of input" >&2; exit 1 ;;
  *) echo "Step 1: differentiate"; echo "cos(x)" ;;
esac
`

func writeFakeGiac(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script backend")
	}
	path := filepath.Join(t.TempDir(), "giac")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestGiacBackend_EndToEnd(t *testing.T) {
	path := writeFakeGiac(t, fakeGiac)
	p := engine.NewProvider(engine.PreferNative, engine.Backends{
		Native: engine.NewGiac(engine.GiacConfig{Binary: path}, quietLogger()),
	}, quietLogger())
	require.NoError(t, p.Initialize(context.Background()))

	out, err := p.Evaluate(context.Background(), "simplify(diff(sin(x),x))")
	require.NoError(t, err)
	assert.Equal(t, "Step 1: differentiate\ncos(x)", out)

	_, err = p.Evaluate(context.Background(), "bad(")
	var evalErr *engine.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Message, "Syntax error")
}

func TestGiacBackend_ProbeFailureMarksFailed(t *testing.T) {
	path := writeFakeGiac(t, "#!/bin/sh\necho 3\n")
	p := engine.NewProvider(engine.PreferNative, engine.Backends{
		Native: engine.NewGiac(engine.GiacConfig{Binary: path}, quietLogger()),
	}, quietLogger())

	err := p.Initialize(context.Background())
	var unavailable *engine.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, err.Error(), `probe returned "3"`)
	assert.Equal(t, "failed", p.Status().State)
}
