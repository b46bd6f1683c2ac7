package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"glossa/internal/logging"
)

// Handle supervises one spawned pipeline subprocess. The child runs in its own
// process group; Terminate and Kill signal the group so forked helpers die
// with it.
type Handle struct {
	cmd  *exec.Cmd
	pid  int
	pgid int

	done    chan struct{}
	waitErr error

	mu         sync.Mutex
	terminated bool
}

// Start launches the invocation in a fresh process group and begins forwarding
// its output lines to the logger. The returned handle owns the child until
// Done fires.
func Start(logger *slog.Logger, inv Invocation, workDir string) (*Handle, error) {
	cmd := exec.Command(inv.Command, inv.Args...) //nolint:gosec
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pipeline: %w", err)
	}

	pid := cmd.Process.Pid
	pgid, pgErr := unix.Getpgid(pid)
	if pgErr != nil {
		pgid = pid
	}

	handle := &Handle{
		cmd:  cmd,
		pid:  pid,
		pgid: pgid,
		done: make(chan struct{}),
	}

	var wg sync.WaitGroup
	forward := func(r io.Reader, stream string) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if logger != nil {
				logger.Info(scanner.Text(), logging.String("stream", stream))
			}
		}
	}
	wg.Add(2)
	go forward(stdout, "stdout")
	go forward(stderr, "stderr")

	go func() {
		wg.Wait()
		handle.waitErr = cmd.Wait()
		close(handle.done)
	}()

	return handle, nil
}

// PID returns the child process identifier.
func (h *Handle) PID() int { return h.pid }

// PGID returns the child's process group identifier.
func (h *Handle) PGID() int { return h.pgid }

// Done is closed once the child has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the child has finished without blocking.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the child's exit code and wait error. Valid only after Done
// has fired; exit code -1 means the child was killed by a signal.
func (h *Handle) Result() (int, error) {
	var exitErr *exec.ExitError
	if errors.As(h.waitErr, &exitErr) {
		return exitErr.ExitCode(), h.waitErr
	}
	if h.waitErr != nil {
		return -1, h.waitErr
	}
	return 0, nil
}

// Terminate sends SIGTERM to the child's process group. Safe to call more
// than once and after exit.
func (h *Handle) Terminate() error {
	return h.signalGroup(unix.SIGTERM)
}

// Kill sends SIGKILL to the child's process group.
func (h *Handle) Kill() error {
	return h.signalGroup(unix.SIGKILL)
}

func (h *Handle) signalGroup(sig unix.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Exited() {
		return nil
	}
	h.terminated = true
	if err := unix.Kill(-h.pgid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		// Group signal failed; fall back to the direct child.
		if killErr := h.cmd.Process.Signal(sig); killErr != nil && !errors.Is(killErr, unix.ESRCH) {
			return fmt.Errorf("signal pipeline %d: %w", h.pid, killErr)
		}
	}
	return nil
}

// Terminated reports whether this handle sent a termination signal.
func (h *Handle) Terminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

// KillGroup force-kills a recorded process group that no longer has a live
// handle, typically after the owning worker died. Best effort: a vanished
// group is not an error.
func KillGroup(pid, pgid int) {
	if pgid > 0 {
		if err := unix.Kill(-pgid, unix.SIGKILL); err == nil || errors.Is(err, unix.ESRCH) {
			return
		}
	}
	if pid > 0 {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
}
