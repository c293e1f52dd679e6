package axiom_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	axiom "github.com/njchilds90/axiom-mcp"
	"github.com/njchilds90/axiom-mcp/compute"
	"github.com/njchilds90/axiom-mcp/engine"
)

// ============================================================
// fakes
// ============================================================

type fakeEngine struct {
	mu        sync.Mutex
	ready     bool
	initErr   error
	inits     int
	answers   map[string]string
	submitted []string
}

func (f *fakeEngine) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	if f.initErr != nil {
		return f.initErr
	}
	f.ready = true
	return nil
}

func (f *fakeEngine) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeEngine) Evaluate(_ context.Context, expr string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, expr)
	if out, ok := f.answers[expr]; ok {
		return out, nil
	}
	return expr, nil
}

type call struct {
	tool    string
	isError bool
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *fakeRecorder) ObserveToolCall(tool string, isError bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{tool, isError})
}

func newDispatcher(eng axiom.Engine, opts ...axiom.Option) *axiom.Dispatcher {
	log, _ := logtest.NewNullLogger()
	return axiom.NewDispatcher(eng, append([]axiom.Option{axiom.WithLogger(log)}, opts...)...)
}

func texts(r *axiom.ToolResult) []string {
	out := make([]string, len(r.Content))
	for i, b := range r.Content {
		out[i] = b.Text
	}
	return out
}

func callTool(t *testing.T, d *axiom.Dispatcher, name, args string) *axiom.ToolResult {
	t.Helper()
	res, err := d.Call(context.Background(), name, json.RawMessage(args))
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// ============================================================
// descriptor tests
// ============================================================

func TestTools_Descriptors(t *testing.T) {
	tools := axiom.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, axiom.ToolQuickCalc, tools[0].Name)
	assert.Equal(t, axiom.ToolAdvancedSolve, tools[1].Name)

	assert.Equal(t, 10*time.Second, tools[0].Annotations.Execution.Timeout())
	assert.Equal(t, 30*time.Second, tools[1].Annotations.Execution.Timeout())
	for _, tool := range tools {
		assert.Equal(t, "optional", tool.Annotations.Execution.TaskSupport)
		assert.Equal(t, []string{"expression"}, tool.InputSchema["required"])
		assert.NotEmpty(t, tool.Title)
		assert.NotEmpty(t, tool.Description)
	}
}

func TestTools_FreshCopies(t *testing.T) {
	a := axiom.Tools()
	a[0].Name = "mutated"
	a[0].InputSchema["type"] = "array"
	b := axiom.Tools()
	assert.Equal(t, axiom.ToolQuickCalc, b[0].Name)
	assert.Equal(t, "object", b[0].InputSchema["type"])
}

func TestLookup(t *testing.T) {
	d, ok := axiom.Lookup("advanced_solve")
	require.True(t, ok)
	assert.Equal(t, "Advanced Symbolic Solver", d.Title)
	_, ok = axiom.Lookup("nope")
	assert.False(t, ok)
}

func TestToolSpec_JSON(t *testing.T) {
	var spec struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
			Annotations struct {
				Execution struct {
					Timeout     int    `json:"timeout"`
					TaskSupport string `json:"taskSupport"`
				} `json:"execution"`
			} `json:"annotations"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(axiom.ToolSpec()), &spec))
	require.Len(t, spec.Tools, 2)
	assert.Equal(t, "quick_calc", spec.Tools[0].Name)
	assert.Equal(t, 10000, spec.Tools[0].Annotations.Execution.Timeout)
	assert.Equal(t, 30000, spec.Tools[1].Annotations.Execution.Timeout)
	props := spec.Tools[0].InputSchema["properties"].(map[string]any)
	precision := props["precision"].(map[string]any)
	assert.Equal(t, float64(1), precision["minimum"])
	assert.Equal(t, float64(50), precision["maximum"])
}

// ============================================================
// content block tests
// ============================================================

func TestBlocks_Order(t *testing.T) {
	res := &compute.Result{
		Result:    "x^2/2",
		LaTeX:     `\frac{x^{2}}{2}`,
		Steps:     []string{"Step 1: power rule", "Step 2: divide"},
		Variables: []string{"x", "y"},
		Domain:    "real",
	}
	var got []string
	for _, b := range axiom.Blocks("Result", res) {
		assert.Equal(t, "text", b.Type)
		got = append(got, b.Text)
	}
	assert.Equal(t, []string{
		"Result: x^2/2",
		`LaTeX: \frac{x^{2}}{2}`,
		"Steps:",
		"Step 1: power rule",
		"Step 2: divide",
		"Variables: x, y",
		"Domain: real",
	}, got)
}

func TestBlocks_OmitsEmptySections(t *testing.T) {
	blocks := axiom.Blocks("", &compute.Result{Result: "5", Steps: []string{}, Variables: []string{}})
	require.Len(t, blocks, 1)
	assert.Equal(t, "5", blocks[0].Text)
}

// ============================================================
// quick_calc tests
// ============================================================

func TestCall_QuickCalc(t *testing.T) {
	d := newDispatcher(&fakeEngine{})
	res := callTool(t, d, "quick_calc", `{"expression":"2+3"}`)
	assert.False(t, res.IsError)
	assert.Equal(t, []string{"5"}, texts(res))
	require.NotNil(t, res.Structured)
	assert.Equal(t, "5", res.Structured.Result)
	assert.Equal(t, compute.KindInteger, res.Structured.Kind)
}

func TestCall_QuickCalcLaTeXAndDomain(t *testing.T) {
	d := newDispatcher(&fakeEngine{})
	res := callTool(t, d, "quick_calc", `{"expression":"1/3","format":"latex","precision":4}`)
	assert.Equal(t, []string{"0.3333", `LaTeX: \frac{1}{3}`}, texts(res))

	res = callTool(t, d, "quick_calc", `{"expression":"sqrt(-9)","units":"none"}`)
	assert.Equal(t, []string{"3i", "Domain: complex"}, texts(res))
}

func TestCall_QuickCalcNeverTouchesEngine(t *testing.T) {
	eng := &fakeEngine{}
	d := newDispatcher(eng)
	callTool(t, d, "quick_calc", `{"expression":"sin(30deg)"}`)
	assert.Zero(t, eng.inits)
	assert.Empty(t, eng.submitted)
}

func TestCall_QuickCalcEvaluationError(t *testing.T) {
	d := newDispatcher(&fakeEngine{})
	res := callTool(t, d, "quick_calc", `{"expression":"2 + +"}`)
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.True(t, strings.HasPrefix(res.Content[0].Text, "numeric evaluation error: "), res.Content[0].Text)
	assert.Nil(t, res.Structured)
}

func TestCall_ValidationErrors(t *testing.T) {
	cases := []struct {
		tool, args, want string
	}{
		{"quick_calc", `{"expression":"1","precision":0}`, "precision must be at least 1"},
		{"quick_calc", `{"expression":"1","precision":51}`, "precision must be at most 50"},
		{"quick_calc", `{"expression":"1","format":"xml"}`, "format must be one of [text, latex, json]"},
		{"quick_calc", `{"expression":"1","units":"imperial"}`, "units must be one of [none, auto, si, us]"},
		{"quick_calc", `{}`, "expression is required"},
		{"quick_calc", ``, "expression is required"},
		{"quick_calc", `{"expression":"   "}`, "expression must be a non-blank string"},
		{"quick_calc", `{"expression":"1","extra":true}`, `unknown field "extra"`},
		{"quick_calc", `{"expression":1}`, "cannot unmarshal number"},
		{"advanced_solve", `{"expression":"x","steps":"yes"}`, "cannot unmarshal string"},
		{"advanced_solve", `{"expression":"x","precision":3}`, `unknown field "precision"`},
		{"advanced_solve", `{"format":"text"}`, "expression is required"},
	}
	for _, tc := range cases {
		t.Run(tc.tool+" "+tc.args, func(t *testing.T) {
			eng := &fakeEngine{}
			d := newDispatcher(eng)
			res := callTool(t, d, tc.tool, tc.args)
			assert.True(t, res.IsError)
			require.Len(t, res.Content, 1)
			assert.Contains(t, res.Content[0].Text, "invalid arguments for "+tc.tool)
			assert.Contains(t, res.Content[0].Text, tc.want)
			assert.Empty(t, eng.submitted)
		})
	}
}

func TestCall_UnknownTool(t *testing.T) {
	d := newDispatcher(&fakeEngine{})
	res, err := d.Call(context.Background(), "plot", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, axiom.ErrUnknownTool))
}

// ============================================================
// advanced_solve tests
// ============================================================

func TestCall_AdvancedSolve(t *testing.T) {
	eng := &fakeEngine{answers: map[string]string{
		"diff(sin(x),x)": "cos(x)",
		"latex(cos(x))":  `"\cos\left(x\right)"`,
	}}
	d := newDispatcher(eng)

	res := callTool(t, d, "advanced_solve", `{"expression":"diff(sin(x),x)","simplify":false,"format":"latex"}`)
	assert.False(t, res.IsError)
	assert.Equal(t, []string{
		"Result: cos(x)",
		`LaTeX: \cos\left(x\right)`,
		"Variables: x",
	}, texts(res))
	assert.Equal(t, 1, eng.inits)
	assert.Equal(t, []string{"diff(sin(x),x)", "latex(cos(x))"}, eng.submitted)
}

func TestCall_AdvancedSolveSimplifiesAndSteps(t *testing.T) {
	eng := &fakeEngine{answers: map[string]string{
		"simplify(2*x+3*x)": "Step 1: collect like terms\n5*x",
	}}
	d := newDispatcher(eng)

	res := callTool(t, d, "advanced_solve", `{"expression":"2*x+3*x","steps":true}`)
	assert.Equal(t, []string{
		"Result: 5*x",
		"Steps:",
		"Step 1: collect like terms",
		"Variables: x",
	}, texts(res))
	assert.Equal(t, []string{"simplify(2*x+3*x)"}, eng.submitted)
}

func TestCall_AdvancedSolveEngineUnavailable(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	p := engine.NewProvider(engine.PreferWasm, engine.Backends{}, log)
	d := axiom.NewDispatcher(p, axiom.WithLogger(log))

	res := callTool(t, d, "advanced_solve", `{"expression":"x+1"}`)
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.True(t, strings.HasPrefix(res.Content[0].Text, "symbolic evaluation error: wasm engine unavailable"), res.Content[0].Text)
	assert.Contains(t, res.Content[0].Text, "not yet implemented")

	// The server keeps answering numeric requests.
	res = callTool(t, d, "quick_calc", `{"expression":"2^3"}`)
	assert.Equal(t, []string{"8"}, texts(res))
}

func TestCall_AdvancedSolveInitFailureIsPerRequest(t *testing.T) {
	eng := &fakeEngine{initErr: errors.New("probe failed")}
	d := newDispatcher(eng)

	for i := 0; i < 2; i++ {
		res := callTool(t, d, "advanced_solve", `{"expression":"x"}`)
		assert.True(t, res.IsError)
		assert.True(t, strings.HasPrefix(res.Content[0].Text, "symbolic evaluation error: "))
	}
	assert.Empty(t, eng.submitted)
}

// ============================================================
// provider integration
// ============================================================

type countingBackend struct {
	loads atomic.Int32
}

func (b *countingBackend) Name() string { return engine.BackendNative }

func (b *countingBackend) Load(context.Context) error {
	b.loads.Add(1)
	time.Sleep(20 * time.Millisecond)
	return nil
}

func (b *countingBackend) Eval(_ context.Context, expr string) (string, error) {
	return strings.TrimSuffix(strings.TrimPrefix(expr, "simplify("), ")"), nil
}

func (b *countingBackend) Close() error { return nil }

func TestCall_ConcurrentFirstRequestsInitializeOnce(t *testing.T) {
	backend := &countingBackend{}
	log, _ := logtest.NewNullLogger()
	p := engine.NewProvider(engine.PreferNative, engine.Backends{
		Native: func() (engine.Backend, error) { return backend, nil },
	}, log)
	d := axiom.NewDispatcher(p, axiom.WithLogger(log))

	var wg sync.WaitGroup
	results := make([]*axiom.ToolResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := d.Call(context.Background(), "advanced_solve", json.RawMessage(`{"expression":"y"}`))
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), backend.loads.Load())
	for _, res := range results {
		require.NotNil(t, res)
		assert.False(t, res.IsError, res.Text())
		assert.Equal(t, "Result: y", res.Content[0].Text)
	}
}

// ============================================================
// observation
// ============================================================

func TestCall_RecordsOutcome(t *testing.T) {
	rec := &fakeRecorder{}
	d := newDispatcher(&fakeEngine{}, axiom.WithRecorder(rec))

	callTool(t, d, "quick_calc", `{"expression":"1+1"}`)
	callTool(t, d, "quick_calc", `{"expression":"1/0"}`)
	_, _ = d.Call(context.Background(), "nope", nil)

	assert.Equal(t, []call{{"quick_calc", false}, {"quick_calc", true}}, rec.calls)
}

func TestCall_LogsCallID(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	d := axiom.NewDispatcher(&fakeEngine{}, axiom.WithLogger(log))

	callTool(t, d, "quick_calc", `{"expression":"1+1"}`)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "tool.call", entry.Message)
	assert.Equal(t, "quick_calc", entry.Data["tool"])
	assert.Len(t, entry.Data["call_id"], 36)
}

func TestToolResult_Text(t *testing.T) {
	r := &axiom.ToolResult{Content: []axiom.ContentBlock{{Type: "text", Text: "a"}, {Type: "text", Text: "b"}}}
	assert.Equal(t, "a\nb", r.Text())
}
