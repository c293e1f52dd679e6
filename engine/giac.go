package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultGiacBinary is looked up on PATH when no explicit path is configured.
const DefaultGiacBinary = "giac"

// GiacConfig configures the native backend.
type GiacConfig struct {
	// Binary is a file name resolved on PATH or an absolute path.
	Binary string
	// Args are passed to every invocation.
	Args []string
}

// NewGiac returns the Constructor of the native backend. Construction fails
// with an *UnavailableError when the Giac binary cannot be found.
func NewGiac(cfg GiacConfig, log logrus.FieldLogger) Constructor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func() (Backend, error) {
		bin := cfg.Binary
		if bin == "" {
			bin = DefaultGiacBinary
		}
		path, err := exec.LookPath(bin)
		if err != nil {
			return nil, &UnavailableError{
				Backend:           BackendNative,
				MissingDependency: "giac",
				Remediation:       GiacRemediation(runtime.GOOS, bin),
				Err:               err,
			}
		}
		return &giacBackend{path: path, args: cfg.Args, log: log.WithField("giac", path)}, nil
	}
}

// GiacRemediation describes how to install Giac on every supported platform,
// the host platform first.
func GiacRemediation(goos, binary string) string {
	steps := map[string]string{
		"linux":   "  - Linux: sudo apt install giac (Debian/Ubuntu) or sudo dnf install giac (Fedora)",
		"darwin":  "  - macOS: sudo port install giac, or install Xcas and link its giac binary",
		"windows": "  - Windows: install Xcas and add its bin directory to PATH",
	}
	order := []string{"linux", "darwin", "windows"}
	if _, ok := steps[goos]; ok {
		sorted := []string{goos}
		for _, p := range order {
			if p != goos {
				sorted = append(sorted, p)
			}
		}
		order = sorted
	}

	var b strings.Builder
	b.WriteString("To install the Giac computer algebra system:\n")
	for _, p := range order {
		b.WriteString(steps[p])
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Then put %q on PATH or set GIAC_PATH to its location.", binary)
	return b.String()
}

type giacBackend struct {
	path string
	args []string
	log  logrus.FieldLogger
}

func (g *giacBackend) Name() string { return BackendNative }

// Load checks that the binary answers a trivial computation.
func (g *giacBackend) Load(ctx context.Context) error {
	out, err := g.Eval(ctx, "1+1")
	if err != nil {
		return &UnavailableError{
			Backend:     BackendNative,
			Remediation: fmt.Sprintf("Check that %s runs from a shell: echo '1+1' | %s", g.path, g.path),
			Err:         fmt.Errorf("probe evaluation failed: %w", err),
		}
	}
	if strings.TrimSpace(out) != "2" {
		return &UnavailableError{
			Backend:     BackendNative,
			Remediation: fmt.Sprintf("%s does not behave like Giac; set GIAC_PATH to a Giac binary.", g.path),
			Err:         fmt.Errorf("probe returned %q, want \"2\"", out),
		}
	}
	return nil
}

func (g *giacBackend) Eval(ctx context.Context, expr string) (string, error) {
	cmd := exec.CommandContext(ctx, g.path, g.args...)
	cmd.Stdin = strings.NewReader(expr + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &EvalError{Backend: BackendNative, Expression: expr, Message: "evaluation interrupted: " + ctxErr.Error(), Err: ctxErr}
	}

	out, failure := ParseGiacOutput(stdout.String(), stderr.String())
	if runErr != nil {
		msg := failure
		if msg == "" {
			msg = runErr.Error()
		}
		return "", &EvalError{Backend: BackendNative, Expression: expr, Message: msg, Err: runErr}
	}
	if failure != "" {
		return "", &EvalError{Backend: BackendNative, Expression: expr, Message: failure}
	}
	if out == "" {
		return "", &EvalError{Backend: BackendNative, Expression: expr, Message: "empty output", Err: errEmptyOutput}
	}
	g.log.WithField("expression", expr).Debug("giac.eval")
	return out, nil
}

// Close is a no-op: every evaluation runs in its own process.
func (g *giacBackend) Close() error { return nil }

var errEmptyOutput = errors.New("giac produced no output")

var (
	giacPrompt = regexp.MustCompile(`^\d+>>\s*`)
	giacError  = regexp.MustCompile(`(?i)(^|\s|")(syntax error|error:|bad argument|undefined)`)
)

// ParseGiacOutput separates Giac's result lines from banners, prompts and
// error reports. It returns the kept lines joined by newlines and the first
// error line, if any.
func ParseGiacOutput(stdout, stderr string) (out, failure string) {
	var kept []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(giacPrompt.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if failure == "" && giacError.MatchString(line) {
			failure = strings.Trim(line, `"`)
			continue
		}
		kept = append(kept, line)
	}
	if failure == "" {
		for _, line := range strings.Split(stderr, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "//") {
				continue
			}
			if giacError.MatchString(line) {
				failure = line
				break
			}
		}
	}
	return strings.Join(kept, "\n"), failure
}
