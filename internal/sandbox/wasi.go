package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Limit violation codes. Deterministic so callers and audit records can
// match on them.
const (
	ErrTimeLimit   = "ERR_TIME_LIMIT"
	ErrMemoryLimit = "ERR_MEMORY_LIMIT"
	ErrOutputLimit = "ERR_OUTPUT_LIMIT"
)

// outputMaxBytes caps combined stdout and stderr per invocation.
const outputMaxBytes = 1 << 20

// Error is a typed sandbox limit violation.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// wasiRunner executes guest modules under WASI with no filesystem, no
// network, and no environment. The runtime closes in-flight executions when
// the invocation context expires.
type wasiRunner struct {
	runtime     wazero.Runtime
	memoryBytes int64
}

func newWASIRunner(ctx context.Context, memoryLimitBytes int64) (*wasiRunner, error) {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if memoryLimitBytes > 0 {
		// wazero measures memory in 64KiB pages.
		pages := uint32(memoryLimitBytes / 65536)
		if pages == 0 {
			pages = 1
		}
		cfg = cfg.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiate wasi: %w", err)
	}
	return &wasiRunner{runtime: r, memoryBytes: memoryLimitBytes}, nil
}

func (w *wasiRunner) run(ctx context.Context, code, input []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start")

	compiled, err := w.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile module: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	mod, err := w.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Code: ErrTimeLimit, Message: "execution exceeded the per-call deadline"}
		}
		if isMemoryError(err) {
			return nil, &Error{Code: ErrMemoryLimit, Message: fmt.Sprintf("execution exceeded the %d byte memory limit", w.memoryBytes)}
		}
		return nil, fmt.Errorf("sandbox: execute module: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stdout.Len()+stderr.Len() > outputMaxBytes {
		return nil, &Error{Code: ErrOutputLimit, Message: fmt.Sprintf("output exceeds %d bytes", outputMaxBytes)}
	}
	return stdout.Bytes(), nil
}

// Close frees the underlying runtime.
func (w *wasiRunner) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}

func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "memory") &&
		(strings.Contains(msg, "limit") || strings.Contains(msg, "grow") || strings.Contains(msg, "exceeded"))
}
