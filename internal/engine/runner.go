package engine

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"time"
)

// tailLineCount is how many trailing output lines are retained per process.
// The tail is what failure classification looks at, so it must cover the
// fetch tool's final error block.
const tailLineCount = 20

// ExecSpec describes one subprocess invocation.
type ExecSpec struct {
	Bin  string
	Args []string
	Dir  string
}

// ExecResult carries the observable outcome of a subprocess run. TailLines
// holds the last lines of the interleaved stdout/stderr stream.
type ExecResult struct {
	ExitCode    int
	Duration    time.Duration
	Interrupted bool
	TailLines   []string
	Err         error
}

// ExecRunner runs a subprocess, invoking onLine for every output line as it
// arrives. onLine may be nil.
type ExecRunner interface {
	Run(ctx context.Context, spec ExecSpec, onLine func(string)) ExecResult
}

// SubprocessRunner is the real ExecRunner. Stdout and stderr are merged into
// one line stream, matching how the fetch tool reports progress and errors.
type SubprocessRunner struct{}

func NewSubprocessRunner() *SubprocessRunner {
	return &SubprocessRunner{}
}

type lineTail struct {
	lines []string
	max   int
}

func newLineTail(max int) *lineTail {
	return &lineTail{lines: make([]string, 0, max), max: max}
}

func (t *lineTail) add(line string) {
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.max-1]
	}
	t.lines = append(t.lines, line)
}

func (r *SubprocessRunner) Run(ctx context.Context, spec ExecSpec, onLine func(string)) ExecResult {
	start := time.Now()
	if spec.Bin == "" {
		return ExecResult{ExitCode: 1, Duration: time.Since(start), Err: errors.New("missing binary")}
	}

	cmd := exec.CommandContext(ctx, spec.Bin, spec.Args...)
	cmd.Dir = spec.Dir
	isolateProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessTree(cmd)
		return nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ExecResult{ExitCode: 1, Duration: time.Since(start), Err: err}
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		result := ExecResult{Duration: time.Since(start), Err: err}
		if errors.Is(err, exec.ErrNotFound) {
			result.ExitCode = 127
		} else {
			result.ExitCode = 1
		}
		return result
	}

	tail := newLineTail(tailLineCount)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)
		if onLine != nil {
			onLine(line)
		}
	}

	waitErr := cmd.Wait()
	result := ExecResult{
		Duration:  time.Since(start),
		TailLines: tail.lines,
		Err:       waitErr,
	}
	if waitErr == nil {
		return result
	}
	if ctx.Err() == context.Canceled {
		result.Interrupted = true
		result.ExitCode = 130
		return result
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result
	}
	result.ExitCode = 1
	return result
}
