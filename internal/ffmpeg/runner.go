package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/endoforge/endoforge/internal/observability"
)

// maxStderrLines bounds the stderr retained per run. ffmpeg rewrites its
// status line continuously, so a long transcode would otherwise accumulate
// megabytes of stale progress text.
const maxStderrLines = 100

// scanBufferSize is the line scanner ceiling; ffprobe JSON reports arrive as
// one very long line.
const scanBufferSize = 1024 * 1024

// LineFunc receives one stderr line as soon as it is read.
type LineFunc func(line string)

// ProgressFunc receives stage progress percentages in [0,100].
type ProgressFunc func(percent float64)

// RunResult is the outcome of one supervised subprocess run.
type RunResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Cancelled bool
}

// Success reports whether the process ran to completion with exit code 0.
func (r *RunResult) Success() bool {
	return r != nil && !r.Cancelled && r.ExitCode == 0
}

// Runner launches and supervises ffmpeg/ffprobe subprocesses. Processes are
// started directly, never through a shell, and both output pipes are drained
// concurrently so a chatty child cannot deadlock against a full pipe.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a subprocess runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger: observability.WithComponent(logger, "ffmpeg"),
	}
}

// Run executes binary with args and waits for completion or cancellation.
// onStderrLine, when non-nil, observes each stderr line as it arrives.
// A non-zero exit is reported through the result, not the error; the error
// return is reserved for launch failures and context cancellation. On
// cancellation the whole process tree is killed and the result carries
// Cancelled=true alongside ctx.Err().
func (r *Runner) Run(ctx context.Context, binary string, args []string, onStderrLine LineFunc) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return &RunResult{ExitCode: -1, Cancelled: true}, err
	}

	cmd := exec.Command(binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", binary, err)
	}

	r.logger.Debug("subprocess started",
		slog.String("binary", binary),
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("args", len(args)))

	var stdoutBuf strings.Builder
	recent := newLineRing(maxStderrLines)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
		for scanner.Scan() {
			stdoutBuf.WriteString(scanner.Text())
			stdoutBuf.WriteByte('\n')
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
		for scanner.Scan() {
			line := scanner.Text()
			recent.add(line)
			if onStderrLine != nil {
				onStderrLine(line)
			}
		}
	}()

	// Both pipes must be fully drained before Wait reaps the child.
	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- cmd.Wait()
	}()

	select {
	case waitErr := <-done:
		result := &RunResult{
			Stdout: stdoutBuf.String(),
			Stderr: recent.String(),
		}
		if waitErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(waitErr, &exitErr) {
				return nil, fmt.Errorf("waiting for %s: %w", binary, waitErr)
			}
			result.ExitCode = exitErr.ExitCode()
		}
		r.logger.Debug("subprocess finished",
			slog.String("binary", binary),
			slog.Int("exit_code", result.ExitCode))
		return result, nil

	case <-ctx.Done():
		r.killTree(cmd.Process.Pid)
		<-done
		r.logger.Debug("subprocess cancelled",
			slog.String("binary", binary),
			slog.Int("pid", cmd.Process.Pid))
		return &RunResult{
			ExitCode:  -1,
			Stdout:    stdoutBuf.String(),
			Stderr:    recent.String(),
			Cancelled: true,
		}, ctx.Err()
	}
}

// RunWithProgress runs a transcode and converts ffmpeg's time= stderr markers
// into percentages of the expected output duration.
func (r *Runner) RunWithProgress(ctx context.Context, binary string, args []string, expected time.Duration, onProgress ProgressFunc) (*RunResult, error) {
	return r.Run(ctx, binary, args, func(line string) {
		if onProgress == nil {
			return
		}
		elapsed, ok := parseProgressTime(line)
		if !ok {
			return
		}
		onProgress(progressPercent(elapsed, expected))
	})
}

// killTree kills the subprocess and any children it spawned. ffmpeg usually
// runs as a single process, but some builds fork helpers.
func (r *Runner) killTree(pid int) {
	proc, err := process.NewProcess(int32(pid))
	if err == nil {
		if children, childErr := proc.Children(); childErr == nil {
			for _, child := range children {
				_ = child.Kill()
			}
		}
		if killErr := proc.Kill(); killErr == nil {
			return
		}
	}
	// gopsutil could not reach the process; signal the pid directly.
	if p, findErr := os.FindProcess(pid); findErr == nil {
		_ = p.Kill()
	}
}

// progressTimeRegex matches the status line ffmpeg prints on stderr during a
// transcode, e.g. "frame=120 fps=30 q=28.0 size=512KiB time=00:00:04.00 ...".
// The fraction is centiseconds.
var progressTimeRegex = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)

// parseProgressTime extracts the elapsed output timestamp from a stderr line.
func parseProgressTime(line string) (time.Duration, bool) {
	matches := progressTimeRegex.FindStringSubmatch(line)
	if len(matches) < 5 {
		return 0, false
	}

	hours, _ := strconv.Atoi(matches[1])
	mins, _ := strconv.Atoi(matches[2])
	secs, _ := strconv.Atoi(matches[3])
	centis, _ := strconv.Atoi(matches[4])

	return time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(centis)*10*time.Millisecond, true
}

// progressPercent converts elapsed/expected into a percentage clamped to [0,100].
func progressPercent(elapsed, expected time.Duration) float64 {
	if expected <= 0 {
		return 0
	}
	percent := elapsed.Seconds() / expected.Seconds() * 100
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	}
	return percent
}

// lineRing keeps the most recent lines added, oldest first.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newLineRing(max int) *lineRing {
	return &lineRing{
		lines: make([]string, 0, max),
		max:   max,
	}
}

func (b *lineRing) add(line string) {
	b.mu.Lock()
	if len(b.lines) >= b.max {
		b.lines = b.lines[1:]
	}
	b.lines = append(b.lines, line)
	b.mu.Unlock()
}

func (b *lineRing) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
