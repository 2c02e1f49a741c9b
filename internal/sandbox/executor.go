// Package sandbox runs declared endpoint functions from untrusted manifest
// code inside an isolated, time-boxed WebAssembly context. Used for
// conformance probing during scans and by moderator tooling; never exposed
// publicly.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config bounds one invocation.
type Config struct {
	Timeout          time.Duration
	MemoryLimitBytes int64
}

// Invocation is the outcome of running one endpoint function.
type Invocation struct {
	Fn            string          `json:"fn"`
	OK            bool            `json:"ok"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	TimedOut      bool            `json:"timedOut,omitempty"`
	ExecutionTime time.Duration   `json:"executionTime"`
}

// TestCase probes one endpoint function for conformance.
type TestCase struct {
	Name     string         `json:"name"`
	Fn       string         `json:"fn"`
	Args     map[string]any `json:"args,omitempty"`
	WantType string         `json:"wantType,omitempty"`
}

// TestOutcome reports one probe.
type TestOutcome struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// guestRequest is the envelope written to the module's stdin.
type guestRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args,omitempty"`
}

// guestResponse is the envelope the module writes to stdout.
type guestResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// moduleRunner executes compiled guest code with the given stdin payload and
// returns its stdout. Errors for limit violations are typed *Error values.
type moduleRunner interface {
	run(ctx context.Context, code, input []byte) ([]byte, error)
}

// Executor invokes untrusted code through an isolated runner. Stateless per
// call; every invocation gets a fresh module instance.
type Executor struct {
	runner moduleRunner
	cfg    Config
	logger *slog.Logger
}

// New builds an executor backed by the in-process WebAssembly runtime.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Executor, error) {
	runner, err := newWASIRunner(ctx, cfg.MemoryLimitBytes)
	if err != nil {
		return nil, err
	}
	return newWithRunner(runner, cfg, logger), nil
}

func newWithRunner(runner moduleRunner, cfg Config, logger *slog.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Executor{runner: runner, cfg: cfg, logger: logger}
}

// Invoke runs fn from the given module code with serialized args. The caller
// is always unblocked within the configured timeout plus scheduling slack;
// failures come back inside the Invocation, never as escaping errors.
func (e *Executor) Invoke(ctx context.Context, code []byte, fn string, args map[string]any) Invocation {
	inv := Invocation{Fn: fn}

	input, err := json.Marshal(guestRequest{Fn: fn, Args: args})
	if err != nil {
		inv.Error = fmt.Sprintf("encode request: %v", err)
		return inv
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	output, err := e.runner.run(runCtx, code, input)
	inv.ExecutionTime = time.Since(start)

	if err != nil {
		var serr *Error
		if errors.As(err, &serr) && serr.Code == ErrTimeLimit {
			inv.TimedOut = true
		} else if runCtx.Err() != nil {
			inv.TimedOut = true
		}
		inv.Error = err.Error()
		e.logger.DebugContext(ctx, "sandbox invocation failed",
			"fn", fn, "timed_out", inv.TimedOut, "error", err)
		return inv
	}

	var resp guestResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		inv.Error = "module produced malformed output"
		return inv
	}
	if !resp.OK {
		inv.Error = resp.Error
		if inv.Error == "" {
			inv.Error = "module reported failure without detail"
		}
		return inv
	}

	inv.OK = true
	inv.Result = resp.Result
	return inv
}

// RunTests invokes each case and checks the dynamic result type when the
// case declares one.
func (e *Executor) RunTests(ctx context.Context, code []byte, cases []TestCase) []TestOutcome {
	outcomes := make([]TestOutcome, 0, len(cases))
	for _, tc := range cases {
		inv := e.Invoke(ctx, code, tc.Fn, tc.Args)
		outcome := TestOutcome{Name: tc.Name}
		switch {
		case !inv.OK:
			outcome.Detail = inv.Error
		case tc.WantType != "" && jsonTypeOf(inv.Result) != tc.WantType:
			outcome.Detail = fmt.Sprintf("result is %s, want %s", jsonTypeOf(inv.Result), tc.WantType)
		default:
			outcome.Passed = true
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// GenerateArgs synthesizes sample values for a declared argument signature so
// conformance probes can call endpoints without real user input.
func GenerateArgs(signature map[string]string) map[string]any {
	if len(signature) == 0 {
		return nil
	}
	args := make(map[string]any, len(signature))
	for name, typ := range signature {
		switch typ {
		case "string":
			args[name] = "sample"
		case "number", "float":
			args[name] = 1.5
		case "int", "integer":
			args[name] = 42
		case "boolean", "bool":
			args[name] = true
		case "array":
			args[name] = []any{}
		case "object", "any":
			args[name] = map[string]any{}
		default:
			args[name] = "sample"
		}
	}
	return args
}

func jsonTypeOf(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "invalid"
	}
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	}
	return "unknown"
}
