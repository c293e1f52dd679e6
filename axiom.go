// Package axiom dispatches math tool calls to the numeric evaluator or the
// symbolic engine and shapes their results into display blocks.
//
// Two tools are exposed:
//   - quick_calc: in-process arbitrary-precision numeric evaluation
//   - advanced_solve: symbolic computation through the Giac engine
//
// Per-request failures never escape as Go errors: they come back as a
// ToolResult with IsError set, so one bad expression cannot take a server
// down.
package axiom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/njchilds90/axiom-mcp/compute"
	"github.com/njchilds90/axiom-mcp/numeric"
	"github.com/njchilds90/axiom-mcp/symbolic"
)

// ErrUnknownTool is returned by Call for names with no descriptor.
var ErrUnknownTool = errors.New("unknown tool")

// Engine is the symbolic engine as the dispatcher needs it.
// *engine.Provider satisfies it.
type Engine interface {
	symbolic.Evaluator
	Initialize(ctx context.Context) error
}

// Recorder observes completed tool calls.
type Recorder interface {
	ObserveToolCall(tool string, isError bool, elapsed time.Duration)
}

// ============================================================
// Results
// ============================================================

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textBlock(s string) ContentBlock { return ContentBlock{Type: "text", Text: s} }

// ToolResult is the outcome of one call. Structured is set on success only.
type ToolResult struct {
	Content    []ContentBlock  `json:"content"`
	IsError    bool            `json:"isError"`
	Structured *compute.Result `json:"structuredContent,omitempty"`
}

// Text joins the text of every block with newlines.
func (r *ToolResult) Text() string {
	lines := make([]string, len(r.Content))
	for i, b := range r.Content {
		lines[i] = b.Text
	}
	return strings.Join(lines, "\n")
}

func errorResult(err error) *ToolResult {
	return &ToolResult{Content: []ContentBlock{textBlock(err.Error())}, IsError: true}
}

// Blocks renders res in the fixed display order: primary result, LaTeX,
// steps, variables, domain. label prefixes the primary block when set.
func Blocks(label string, res *compute.Result) []ContentBlock {
	primary := res.Result
	if label != "" {
		primary = label + ": " + primary
	}
	blocks := []ContentBlock{textBlock(primary)}
	if res.LaTeX != "" {
		blocks = append(blocks, textBlock("LaTeX: "+res.LaTeX))
	}
	if len(res.Steps) > 0 {
		blocks = append(blocks, textBlock("Steps:"))
		for _, s := range res.Steps {
			blocks = append(blocks, textBlock(s))
		}
	}
	if len(res.Variables) > 0 {
		blocks = append(blocks, textBlock("Variables: "+strings.Join(res.Variables, ", ")))
	}
	if res.Domain != "" {
		blocks = append(blocks, textBlock("Domain: "+res.Domain))
	}
	return blocks
}

// ============================================================
// Dispatcher
// ============================================================

// Dispatcher routes tool calls. It is safe for concurrent use.
type Dispatcher struct {
	engine   Engine
	numeric  *numeric.Service
	symbolic *symbolic.Service
	log      logrus.FieldLogger
	recorder Recorder
}

type Option func(*Dispatcher)

// WithLogger sets the logger; the default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithRecorder sets the call observer, typically the metrics collector.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher builds a Dispatcher over eng.
func NewDispatcher(eng Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{engine: eng, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(d)
	}
	d.numeric = numeric.NewService(d.log)
	d.symbolic = symbolic.NewService(eng, d.log)
	return d
}

// Call runs the tool name with JSON arguments. The error is non-nil only for
// an unknown tool; every other failure is a ToolResult with IsError set.
func (d *Dispatcher) Call(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error) {
	desc, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	log := d.log.WithFields(logrus.Fields{"tool": name, "call_id": uuid.NewString()})
	start := time.Now()
	res, err := d.dispatch(ctx, desc, args, log)
	var out *ToolResult
	if err != nil {
		out = errorResult(err)
	} else {
		out = &ToolResult{Content: Blocks(desc.resultLabel, res), Structured: res}
	}
	elapsed := time.Since(start)

	entry := log.WithFields(logrus.Fields{"is_error": out.IsError, "elapsed": elapsed})
	if err != nil {
		entry.WithError(err).Info("tool.call")
	} else {
		entry.Info("tool.call")
	}
	if d.recorder != nil {
		d.recorder.ObserveToolCall(name, out.IsError, elapsed)
	}
	return out, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, desc ToolDescriptor, raw json.RawMessage, log logrus.FieldLogger) (*compute.Result, error) {
	switch desc.Name {
	case ToolQuickCalc:
		var args QuickCalcArgs
		if err := decodeArgs(desc.Name, raw, &args); err != nil {
			return nil, err
		}
		res, _, err := d.numeric.Evaluate(args.Request())
		return res, err

	case ToolAdvancedSolve:
		var args AdvancedSolveArgs
		if err := decodeArgs(desc.Name, raw, &args); err != nil {
			return nil, err
		}
		if err := d.engine.Initialize(ctx); err != nil {
			log.WithError(err).Warn("engine.initialize.failed")
		}
		return d.symbolic.Evaluate(ctx, args.Request())
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, desc.Name)
}
