// Package ffmpeg executes the external media processor and owns the small
// amount of media preparation done before planning.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
	"unicode/utf8"
)

const (
	maxStderrBytes = 16 * 1024 // tail of stderr kept for diagnostics
)

// Invocation is a structured process invocation: program plus argument vector.
type Invocation interface {
	Program() string
	Arguments() []string
}

// RunResult is the structured outcome of executing the media processor.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// Runner executes media-processor invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) RunResult
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run starts the program directly (no shell) and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, inv.Program(), inv.Arguments()...)

	var stderrBuf bytes.Buffer
	stderr := &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stderr = stderr
	cmd.Stdout = io.Discard

	r.logger.Debug("executing media command", "program", inv.Program(), "args", len(inv.Arguments()))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			if stderrBuf.Len() == 0 {
				stderrBuf.WriteString(err.Error())
			}
		}
	}

	stderrTail := stderrBuf.String()
	if stderr.dropped {
		stderrTail = runeAligned(stderrTail)
	}

	if exitCode != 0 {
		r.logger.Warn("media command failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.logger.Info("media command succeeded", "duration_ms", elapsed.Milliseconds())
	}

	return RunResult{
		ExitCode:   exitCode,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

// ResultError turns a failed RunResult into an error; nil on success.
func ResultError(res RunResult) error {
	if res.IsSuccess() {
		return nil
	}
	return fmt.Errorf("media processor exited %d: %s", res.ExitCode, truncate(res.StderrTail, 512))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + Tail(s, maxLen)
}

// Tail returns at most maxBytes trailing bytes of s, starting on a rune
// boundary.
func Tail(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	return runeAligned(s[len(s)-maxBytes:])
}

// runeAligned drops continuation bytes left at the front of a cut string.
func runeAligned(s string) string {
	i := 0
	for i < len(s) && i < utf8.UTFMax && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w       *bytes.Buffer
	limit   int
	dropped bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
		lw.dropped = true
	}
	return n, nil
}
