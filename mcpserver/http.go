package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	axiom "github.com/njchilds90/axiom-mcp"
	"github.com/njchilds90/axiom-mcp/engine"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// HTTPOptions configure the HTTP surface.
type HTTPOptions struct {
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// RateLimit admits this many requests per second to /mcp, with bursts of
	// Burst. Zero disables the limiter.
	RateLimit float64
	Burst     int
}

// Handler returns the HTTP routes:
//
//	/mcp     streamable MCP endpoint
//	/schema  tool descriptors as JSON
//	/health  liveness plus engine status
//	/metrics Prometheus metrics (when configured)
func (s *Server) Handler(opts HTTPOptions) http.Handler {
	mux := http.NewServeMux()

	var endpoint http.Handler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	endpoint = limitBody(endpoint)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		endpoint = s.admit(rate.NewLimiter(rate.Limit(opts.RateLimit), burst), endpoint)
	}
	mux.Handle("/mcp", endpoint)

	mux.HandleFunc("/schema", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, axiom.ToolSpec())
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}
		if s.status != nil {
			st := s.status()
			body["engine"] = st
			// Numeric evaluation keeps working without the engine.
			if st.State == engine.StateFailed.String() {
				body["status"] = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	return s.recoverPanics(mux)
}

// limitBody caps request bodies on the MCP endpoint.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// admit rejects requests beyond the limiter's budget with 429.
func (s *Server) admit(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			s.log.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
				"remote": r.RemoteAddr,
			}).Warn("http.rate_limited")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.WithFields(logrus.Fields{
					"path":  r.URL.Path,
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("http.panic")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves h on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: streamable sessions hold responses open.
		IdleTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("mcp.http.listen")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("mcp.http.shutdown")
		return srv.Shutdown(shutdownCtx)
	}
}
