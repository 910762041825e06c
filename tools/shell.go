// Sandboxed Command Executor.
//
// Information Hiding:
// - Process spawning and pipeline wiring hidden
// - Timeout enforcement and process termination hidden
// - Output capping and truncation marker hidden

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"
)

// TruncationMarker is appended to output cut at the byte cap.
const TruncationMarker = "\n... (output truncated)"

// passthroughEnv lists the only environment variables a sandboxed process sees.
var passthroughEnv = []string{"PATH", "LANG", "LC_ALL"}

// ExecutionResult is the captured outcome of one command.
type ExecutionResult struct {
	Command    string `json:"command"`
	ExitOK     bool   `json:"exit_ok"`
	Output     string `json:"output"`
	Truncated  bool   `json:"truncated"`
	DurationMs int64  `json:"duration_ms"`
}

// Sandbox runs validated command pipelines rooted at the workspace directory.
// It does not invoke a shell: each pipeline segment is spawned directly with
// the argv the policy approved, so nothing is expanded after validation.
type Sandbox struct {
	root   string
	config ExecConfig
}

// NewSandbox creates a sandbox whose processes run in root.
func NewSandbox(root string, config ExecConfig) *Sandbox {
	return &Sandbox{root: root, config: config}
}

// Root returns the working directory of spawned processes.
func (s *Sandbox) Root() string {
	return s.root
}

// Execute runs command and returns its captured output.
// A non-zero exit is not an error: the result carries stderr with ExitOK false.
// Errors are returned only for timeouts (ErrTimeout) and failures to start (ErrExecution).
func (s *Sandbox) Execute(ctx context.Context, command string) (result ExecutionResult, err error) {
	result.Command = command
	start := time.Now()
	defer func() { result.DurationMs = time.Since(start).Milliseconds() }()

	segments, err := ParsePipeline(command)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	timeout := s.config.Timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limit := s.config.OutputLimit()
	stdout := newCappedBuffer(limit)
	stderr := newCappedBuffer(limit)

	cmds := make([]*exec.Cmd, len(segments))
	for i, args := range segments {
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Dir = s.root
		cmd.Env = sandboxEnv()
		cmd.Stderr = stderr
		cmd.WaitDelay = time.Second
		cmds[i] = cmd
	}
	cmds[len(cmds)-1].Stdout = stdout

	// The parent closes its pipe ends once children hold them, so an early
	// exit downstream (head) delivers SIGPIPE upstream instead of blocking.
	var pipeEnds []*os.File
	closePipes := func() {
		for _, f := range pipeEnds {
			_ = f.Close()
		}
		pipeEnds = nil
	}
	for i := 0; i < len(cmds)-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			closePipes()
			return result, fmt.Errorf("%w: failed to create pipe: %v", ErrExecution, err)
		}
		cmds[i].Stdout = w
		cmds[i+1].Stdin = r
		pipeEnds = append(pipeEnds, r, w)
	}

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			closePipes()
			for _, started := range cmds[:i] {
				_ = started.Process.Kill()
				_ = started.Wait()
			}
			return result, fmt.Errorf("%w: failed to start %s: %v", ErrExecution, segments[i][0], err)
		}
	}
	closePipes()

	// Only the last segment's status decides success, as in a shell pipeline.
	var lastErr error
	for i, cmd := range cmds {
		err := cmd.Wait()
		if i == len(cmds)-1 {
			lastErr = err
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("%w: command timed out after %s", ErrTimeout, timeout)
	}

	if lastErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(lastErr, &exitErr) {
			return result, fmt.Errorf("%w: %v", ErrExecution, lastErr)
		}
		result.Output, result.Truncated = capOutput(stderr, limit)
		return result, nil
	}

	result.ExitOK = true
	result.Output, result.Truncated = capOutput(stdout, limit)
	return result, nil
}

func sandboxEnv() []string {
	env := []string{"TERM=dumb"}
	for _, key := range passthroughEnv {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return env
}

// capOutput returns the captured text, cut so that text plus marker fits limit.
func capOutput(buf *cappedBuffer, limit int) (string, bool) {
	data := buf.Bytes()
	if !buf.overflowed() && len(data) <= limit {
		return string(data), false
	}
	keep := limit - len(TruncationMarker)
	if keep < 0 {
		keep = 0
	}
	if keep > len(data) {
		keep = len(data)
	}
	// Step back only over continuation bytes so the cut never splits a rune.
	for keep > 0 && keep < len(data) && !utf8.RuneStart(data[keep]) {
		keep--
	}
	return string(data[:keep]) + TruncationMarker, true
}

// cappedBuffer keeps at most limit bytes and silently discards the rest,
// so a chatty process cannot grow memory without bound.
type cappedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			b.overflow = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.overflow = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

var _ io.Writer = (*cappedBuffer)(nil)
