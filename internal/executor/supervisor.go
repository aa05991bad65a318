package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/qualscan/internal/extract"
)

// ExecutionResult is the outcome of one supervised attempt
type ExecutionResult struct {
	ExitCode           int
	Stdout             string
	Stderr             string
	TimedOut           bool
	Stalled            bool
	RecoveredFromStall bool
	Cancelled          bool
	EarlyReturn        *int   // set when the process never started
	LogSection         string // finished log text of this attempt
}

// Supervisor runs one reviewer process per call
type Supervisor struct {
	opts Options
}

// NewSupervisor creates a supervisor with the given options
func NewSupervisor(opts Options) *Supervisor {
	return &Supervisor{opts: opts}
}

// Run executes argv in dir and supervises it until it exits, times out,
// stalls or ctx is cancelled. It never panics on process or I/O errors; every
// outcome is expressed in the returned result.
func (s *Supervisor) Run(ctx context.Context, argv []string, dir string, att AttemptContext) ExecutionResult {
	state := newRunnerState(time.Now())

	if len(argv) == 0 {
		return s.spawnFailure(att, argv, state, errors.New("empty command"))
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = streamWriter{state: state}
	cmd.Stderr = streamWriter{state: state, stderr: true}
	cmd.WaitDelay = s.waitDelay()
	prepareCommand(cmd)

	if err := cmd.Start(); err != nil {
		return s.spawnFailure(att, argv, state, err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	liveDone := make(chan struct{})
	var liveWG sync.WaitGroup
	if s.opts.LiveLogInterval > 0 {
		liveWG.Add(1)
		go func() {
			defer liveWG.Done()
			s.liveLog(liveDone, att, argv, state)
		}()
	}

	poll := time.NewTicker(s.opts.pollInterval())
	defer poll.Stop()

	sig := statArtifact(att.OutputPath)
	sigSince := time.Now()

	var (
		waitErr  error
		timedOut bool
		stalled  bool
	)

loop:
	for {
		select {
		case waitErr = <-waitCh:
			break loop

		case <-ctx.Done():
			state.cancel()
			state.setNote("run cancelled, terminating reviewer")
			waitErr = s.stop(cmd, waitCh)
			break loop

		case now := <-poll.C:
			if s.opts.Timeout > 0 && now.Sub(att.Started) > s.opts.Timeout {
				timedOut = true
				state.setNote(fmt.Sprintf("timeout of %s exceeded, terminating reviewer", s.opts.Timeout))
				waitErr = s.stop(cmd, waitCh)
				break loop
			}
			if s.opts.StallWindow <= 0 {
				continue
			}
			if cur := statArtifact(att.OutputPath); !cur.same(sig) {
				sig, sigSince = cur, now
			}
			if now.Sub(sigSince) >= s.opts.StallWindow && now.Sub(state.idleSince()) >= s.opts.StallWindow {
				stalled = true
				state.setNote("stall recovery triggered, terminating reviewer")
				waitErr = s.stop(cmd, waitCh)
				break loop
			}
		}
	}

	close(liveDone)
	liveWG.Wait()

	cancelled := state.isCancelled()
	res := ExecutionResult{TimedOut: timedOut, Stalled: stalled, Cancelled: cancelled}
	var trailer string
	elapsed := secs(att.Elapsed())
	switch {
	case cancelled:
		res.ExitCode = ExitCancelled
		trailer = fmt.Sprintf("CANCELLED after %ds", elapsed)
	case timedOut:
		res.ExitCode = ExitTimeout
		trailer = fmt.Sprintf("TIMEOUT after %ds", elapsed)
	case stalled:
		res.ExitCode = ExitTimeout
		res.RecoveredFromStall = extract.HasPayload(att.OutputPath)
		if res.RecoveredFromStall {
			state.setNote("stall recovery triggered, output file holds a usable JSON payload")
		} else {
			state.setNote("stall recovery triggered, output file holds no usable JSON payload")
		}
		trailer = fmt.Sprintf("STALL RECOVERY after %ds (output file stable, streams idle for %ds)",
			elapsed, secs(s.opts.StallWindow))
	default:
		res.ExitCode = exitCode(cmd, waitErr)
		trailer = fmt.Sprintf("EXIT CODE: %d", res.ExitCode)
	}

	snap := state.snapshot()
	res.Stdout, res.Stderr = snap.stdout, snap.stderr
	res.LogSection = formatSection(att, argv, snap, trailer)
	s.write(att, res.LogSection)
	return res
}

func (s *Supervisor) spawnFailure(att AttemptContext, argv []string, state *runnerState, err error) ExecutionResult {
	code := spawnExitCode(err)
	state.setNote(fmt.Sprintf("RUNNER ERROR: %v", err))
	snap := state.snapshot()
	section := formatSection(att, argv, snap, fmt.Sprintf("EXIT CODE: %d", code))
	s.write(att, section)
	return ExecutionResult{
		ExitCode:    code,
		Stderr:      err.Error(),
		EarlyReturn: &code,
		LogSection:  section,
	}
}

func spawnExitCode(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return ExitNotFound
	}
	return ExitSpawn
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState == nil {
		if waitErr != nil {
			return 1
		}
		return 0
	}
	if code := cmd.ProcessState.ExitCode(); code >= 0 {
		return code
	}
	return signalExitCode(cmd.ProcessState)
}

// stop terminates gracefully, then kills after the grace period, and
// returns the Wait error.
func (s *Supervisor) stop(cmd *exec.Cmd, waitCh <-chan error) error {
	if err := terminate(cmd); err != nil {
		log.Printf("[executor] terminate pid %d: %v", cmd.Process.Pid, err)
	}

	timer := time.NewTimer(s.opts.KillGrace)
	defer timer.Stop()
	select {
	case err := <-waitCh:
		return err
	case <-timer.C:
	}

	if err := kill(cmd); err != nil {
		log.Printf("[executor] kill pid %d: %v", cmd.Process.Pid, err)
	}
	return <-waitCh
}

// waitDelay bounds how long Wait blocks on pipes held open by grandchildren
func (s *Supervisor) waitDelay() time.Duration {
	if s.opts.KillGrace < time.Second {
		return time.Second
	}
	return s.opts.KillGrace
}

func (s *Supervisor) liveLog(done <-chan struct{}, att AttemptContext, argv []string, state *runnerState) {
	ticker := time.NewTicker(s.opts.LiveLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snap := state.snapshot()
			trailer := fmt.Sprintf("STATUS: running for %ds (stdout %s, stderr %s)",
				secs(att.Elapsed()),
				humanize.Bytes(uint64(len(snap.stdout))),
				humanize.Bytes(uint64(len(snap.stderr))))
			s.write(att, formatSection(att, argv, snap, trailer))
		}
	}
}

func (s *Supervisor) write(att AttemptContext, section string) {
	if err := att.WriteLog(section); err != nil {
		log.Printf("[executor] Warning: %s: %v", att.LogPath, err)
	}
}

func formatSection(att AttemptContext, argv []string, snap stateSnapshot, trailer string) string {
	var b strings.Builder
	b.WriteString(att.Header + "\n")
	fmt.Fprintf(&b, "started: %s\n", att.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "command: %s\n", DisplayCommand(argv))
	if snap.note != "" {
		fmt.Fprintf(&b, "RUNNER NOTE: %s\n", snap.note)
	}
	b.WriteString("STDOUT:\n")
	b.WriteString(withNewline(snap.stdout))
	b.WriteString("STDERR:\n")
	b.WriteString(withNewline(snap.stderr))
	b.WriteString(trailer + "\n")
	return b.String()
}

func withNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func secs(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}

// artifactSig is the stall signature of the output artifact
type artifactSig struct {
	exists bool
	size   int64
	mod    time.Time
}

func statArtifact(path string) artifactSig {
	if path == "" {
		return artifactSig{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return artifactSig{}
	}
	return artifactSig{exists: true, size: info.Size(), mod: info.ModTime()}
}

func (a artifactSig) same(b artifactSig) bool {
	return a.exists == b.exists && a.size == b.size && a.mod.Equal(b.mod)
}
