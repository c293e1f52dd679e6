// cmd/axiom-mcp/main.go: MCP server and command-line front end for the math
// tools.
//
// Usage:
//
//	axiom-mcp serve                                  # stdio transport
//	axiom-mcp serve --transport http --port 3000     # /mcp /schema /health /metrics
//	axiom-mcp calc "2^100"
//	axiom-mcp solve "integrate(x^2, x)"
//	axiom-mcp tools
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	axiom "github.com/njchilds90/axiom-mcp"
	"github.com/njchilds90/axiom-mcp/config"
	"github.com/njchilds90/axiom-mcp/engine"
	"github.com/njchilds90/axiom-mcp/logging"
	"github.com/njchilds90/axiom-mcp/mcpserver"
	"github.com/njchilds90/axiom-mcp/metrics"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "axiom-mcp",
		Short: "Numeric and symbolic math tools over the Model Context Protocol",
		Long: `axiom-mcp serves two tools to MCP clients:

  quick_calc      arbitrary-precision numeric evaluation, in process
  advanced_solve  symbolic computation through the Giac engine

Configuration comes from flags, environment (GIAC_ENGINE, GIAC_PATH,
MCP_TRANSPORT, MCP_HOST, MCP_PORT, AXIOM_LOG_LEVEL, AXIOM_LOG_FORMAT) and an
optional axiom.yaml, in that order of precedence.`,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./axiom.yaml)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(),
		newCalcCmd(),
		newSolveCmd(),
		newToolsCmd(),
		newVersionCmd(),
	)
	return root
}

// app is everything a command needs, built from the resolved config.
type app struct {
	cfg        config.Config
	log        *logrus.Logger
	provider   *engine.Provider
	metrics    *metrics.Collector
	dispatcher *axiom.Dispatcher
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(config.Options{File: configFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}
	if !cfg.EngineRecognized() {
		log.WithField("engine", cfg.EngineRaw).Warn("unknown engine preference, using auto")
	}

	provider := engine.NewProvider(cfg.Engine, engine.Backends{
		Native: engine.NewGiac(engine.GiacConfig{Binary: cfg.GiacPath}, log),
	}, log)
	collector := metrics.NewCollector("")
	collector.TrackEngine(provider.Status)

	return &app{
		cfg:        cfg,
		log:        log,
		provider:   provider,
		metrics:    collector,
		dispatcher: axiom.NewDispatcher(provider, axiom.WithLogger(log), axiom.WithRecorder(collector)),
	}, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.provider.Close()
			ctx := cmd.Context()

			// Warm the engine in the background; advanced_solve calls join
			// the same initialisation.
			go func() {
				if err := a.provider.Initialize(ctx); err != nil {
					a.log.WithError(err).Warn("engine unavailable, advanced_solve will report it per request")
				}
			}()

			srv := mcpserver.New(a.dispatcher, mcpserver.Options{
				Version: Version,
				Logger:  a.log,
				Status:  a.provider.Status,
			})

			switch a.cfg.Transport {
			case config.TransportHTTP:
				h := srv.Handler(mcpserver.HTTPOptions{
					Metrics:   a.metrics.Handler(),
					RateLimit: a.cfg.RateLimit,
					Burst:     a.cfg.RateBurst,
				})
				a.log.WithField("addr", a.cfg.Addr()).Info("axiom-mcp listening")
				return srv.ListenAndServe(ctx, a.cfg.Addr(), h)
			default:
				return srv.RunStdio(ctx)
			}
		},
	}
}

func newCalcCmd() *cobra.Command {
	var (
		precision int
		format    string
		units     string
	)
	cmd := &cobra.Command{
		Use:   "calc <expression>",
		Short: "Evaluate an expression with quick_calc",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			in := map[string]any{"expression": args[0]}
			if cmd.Flags().Changed("precision") {
				in["precision"] = precision
			}
			if format != "" {
				in["format"] = format
			}
			if units != "" {
				in["units"] = units
			}
			return a.run(cmd, axiom.ToolQuickCalc, in)
		},
	}
	cmd.Flags().IntVarP(&precision, "precision", "p", 10, "decimal places (1-50)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: text, latex or json")
	cmd.Flags().StringVar(&units, "units", "", "unit system: none, auto, si or us")
	return cmd
}

func newSolveCmd() *cobra.Command {
	var (
		format string
		steps  bool
		noSimp bool
	)
	cmd := &cobra.Command{
		Use:   "solve <expression>",
		Short: "Evaluate an expression with advanced_solve (requires Giac)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.provider.Close()
			in := map[string]any{"expression": args[0], "steps": steps, "simplify": !noSimp}
			if format != "" {
				in["format"] = format
			}
			return a.run(cmd, axiom.ToolAdvancedSolve, in)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: text, latex or json")
	cmd.Flags().BoolVar(&steps, "steps", false, "show step lines emitted by the engine")
	cmd.Flags().BoolVar(&noSimp, "no-simplify", false, "do not wrap the expression in simplify()")
	return cmd
}

// run calls one tool and prints its blocks; a failed result exits non-zero.
func (a *app) run(cmd *cobra.Command, tool string, in map[string]any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	res, err := a.dispatcher.Call(cmd.Context(), tool, raw)
	if err != nil {
		return err
	}
	if res.IsError {
		return errors.New(res.Text())
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Text())
	return nil
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool descriptors as JSON",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), axiom.ToolSpec())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mcpserver.Name, Version)
		},
	}
}
