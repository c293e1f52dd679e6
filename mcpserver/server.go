// Package mcpserver exposes the tool dispatcher over the Model Context
// Protocol, on stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	axiom "github.com/njchilds90/axiom-mcp"
	"github.com/njchilds90/axiom-mcp/engine"
)

// Name is the implementation name announced to clients.
const Name = "axiom-mcp"

const instructions = "Use quick_calc for numeric expressions (fast, arbitrary precision, " +
	"complex numbers). Use advanced_solve for symbolic work such as integrate, diff, " +
	"solve, factor, expand and limit."

// Options configure a Server.
type Options struct {
	Version string
	Logger  logrus.FieldLogger
	// Status reports the engine for /health; nil omits it.
	Status func() engine.Status
}

// Server adapts a Dispatcher to an MCP server.
type Server struct {
	dispatcher *axiom.Dispatcher
	mcp        *mcp.Server
	log        logrus.FieldLogger
	status     func() engine.Status
}

// New registers every tool descriptor with a fresh MCP server.
func New(d *axiom.Dispatcher, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		dispatcher: d,
		log:        log.WithField("component", "mcpserver"),
		status:     opts.Status,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: Name, Version: version},
		&mcp.ServerOptions{Instructions: instructions},
	)
	for _, desc := range axiom.Tools() {
		s.mcp.AddTool(Tool(desc), s.handler(desc))
	}
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// RunStdio serves one session on stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.log.Info("mcp.stdio.start")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Tool converts a descriptor to the SDK tool. Execution metadata travels in
// _meta.
func Tool(desc axiom.ToolDescriptor) *mcp.Tool {
	return &mcp.Tool{
		Name:         desc.Name,
		Title:        desc.Title,
		Description:  desc.Description,
		InputSchema:  desc.InputSchema,
		OutputSchema: desc.OutputSchema,
		Meta: mcp.Meta{
			"execution": map[string]any{
				"taskSupport": desc.Annotations.Execution.TaskSupport,
				"timeout":     desc.Annotations.Execution.TimeoutMS,
			},
		},
		Annotations: &mcp.ToolAnnotations{
			Title:          desc.Title,
			ReadOnlyHint:   true,
			IdempotentHint: true,
		},
	}
}

// handler applies the declared timeout as a deadline and turns a panic into a
// failed result.
func (s *Server) handler(desc axiom.ToolDescriptor) mcp.ToolHandler {
	timeout := desc.Annotations.Execution.Timeout()
	return func(ctx context.Context, req *mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.WithFields(logrus.Fields{
					"tool":  desc.Name,
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("mcp.tool.panic")
				res, err = errorResult(fmt.Sprintf("internal error in %s: %v", desc.Name, rec)), nil
			}
		}()

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		var args []byte
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		out, err := s.dispatcher.Call(ctx, desc.Name, args)
		if err != nil {
			return nil, err
		}
		return toCallToolResult(out), nil
	}
}

func toCallToolResult(r *axiom.ToolResult) *mcp.CallToolResult {
	content := make([]mcp.Content, len(r.Content))
	for i, b := range r.Content {
		content[i] = &mcp.TextContent{Text: b.Text}
	}
	res := &mcp.CallToolResult{Content: content, IsError: r.IsError}
	if r.Structured != nil {
		res.StructuredContent = r.Structured
	}
	return res
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
