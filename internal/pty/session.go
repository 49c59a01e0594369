// Package pty owns interactive shell sessions: spawning, writing, resizing,
// killing, and fanning out their output to subscribed listeners (§4.4).
package pty

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/env"
)

// OutputSink receives every output chunk before it reaches listeners — the
// terminal stream store (C5) implements this so replay survives a
// disconnect even if no listener was attached when the data arrived.
type OutputSink interface {
	AppendOutput(sessionID string, seq uint64, data []byte)
}

// Listener receives fanned-out output. Delivery is best-effort: a listener
// that panics is recovered so it cannot stall the session; it stays
// subscribed and is called again for later output.
type Listener func(seq uint64, data []byte)

// Session is one interactive shell, identified by a caller-chosen id so
// Create is idempotent across reconnects.
type Session struct {
	ID        string
	ProjectID string
	Cmd       *exec.Cmd
	Pty       *os.File

	CreatedAt time.Time

	mu             sync.Mutex
	lastActivityAt time.Time
	listeners      map[int]Listener
	nextListenerID int
	pending        []byte
	flushSignal    chan struct{}
	seq            uint64
	exited         bool

	sink OutputSink
}

// Config configures a new Session.
type Config struct {
	ID        string
	ProjectID string
	Cwd       string
	Rows      int
	Cols      int
	Sanitizer *env.Sanitizer
	Sink      OutputSink
}

func defaultShell() string {
	if runtime.GOOS == "windows" {
		return "powershell.exe"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/bash"
}

func shellArgs() []string {
	if runtime.GOOS == "windows" {
		return []string{"-NoLogo"}
	}
	return nil
}

// terminateSignal is the signal sent for an explicit "SIGTERM" kill request.
// Windows processes don't support POSIX signals beyond os.Kill, so Signal
// falls back to a hard kill there instead of erroring.
func terminateSignal() os.Signal {
	if runtime.GOOS == "windows" {
		return os.Kill
	}
	return syscall.SIGTERM
}

// newSession spawns the platform shell and starts its output reader (§4.4
// "Create"). It does not register the session with a Manager.
func newSession(cfg Config) (*Session, error) {
	rows, cols := cfg.Rows, cfg.Cols
	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}

	cmd := exec.Command(defaultShell(), shellArgs()...)
	cmd.Dir = cfg.Cwd

	termEnv := []string{
		"TERM=xterm-256color",
		fmt.Sprintf("COLUMNS=%d", cols),
		fmt.Sprintf("LINES=%d", rows),
		"LC_ALL=en_US.UTF-8",
		"LANG=en_US.UTF-8",
	}
	base := cfg.Sanitizer.Build()
	cmd.Env = append(append([]string{}, base...), termEnv...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, apierr.IO(err)
	}

	now := time.Now()
	s := &Session{
		ID:             cfg.ID,
		ProjectID:      cfg.ProjectID,
		Cmd:            cmd,
		Pty:            ptmx,
		CreatedAt:      now,
		lastActivityAt: now,
		listeners:      make(map[int]Listener),
		flushSignal:    make(chan struct{}, 1),
		sink:           cfg.Sink,
	}

	// Prime the prompt: most shells don't print their first prompt until
	// something nudges the tty.
	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = s.Pty.Write([]byte("\r"))
	}()

	go s.readLoop()
	go s.flushLoop()

	return s, nil
}

func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.Pty.Read(buf)
		if n > 0 {
			s.onData(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			s.mu.Lock()
			s.exited = true
			s.mu.Unlock()
			return
		}
	}
}

// onData is the output hook: it appends the chunk to the pending buffer and
// schedules a flush. It does not write to the stream store itself; flushLoop
// hands each flushed batch to the sink before any listener sees it.
func (s *Session) onData(chunk []byte) {
	s.mu.Lock()
	s.lastActivityAt = time.Now()
	s.pending = append(s.pending, chunk...)
	s.mu.Unlock()

	select {
	case s.flushSignal <- struct{}{}:
	default:
	}
}

// flushLoop is the micro-task-style batching goroutine: it wakes on signal,
// drains whatever has accumulated in pending (coalescing any bursts that
// landed while it woke up), and fans out exactly one frame.
func (s *Session) flushLoop() {
	for range s.flushSignal {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			continue
		}
		data := s.pending
		s.pending = nil
		s.seq++
		seq := s.seq
		listeners := make([]Listener, 0, len(s.listeners))
		for _, l := range s.listeners {
			listeners = append(listeners, l)
		}
		sink := s.sink
		s.mu.Unlock()

		if sink != nil {
			sink.AppendOutput(s.ID, seq, data)
		}
		for _, l := range listeners {
			deliver(l, seq, data)
		}
	}
}

// deliver calls a listener, recovering from a panic so one bad listener
// cannot stall the session's fan-out.
func deliver(l Listener, seq uint64, data []byte) {
	defer func() { recover() }()
	l(seq, data)
}

// AddListener subscribes fn to this session's output and returns an id for
// RemoveListener.
func (s *Session) AddListener(fn Listener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = fn
	return id
}

// RemoveListener unsubscribes a listener previously returned by AddListener.
func (s *Session) RemoveListener(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

// Write forwards data to the shell's stdin.
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	s.lastActivityAt = time.Now()
	s.mu.Unlock()
	if _, err := s.Pty.Write(data); err != nil {
		return apierr.IO(err)
	}
	return nil
}

// Resize forwards a window-size change to the shell.
func (s *Session) Resize(rows, cols int) error {
	if err := pty.Setsize(s.Pty, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return apierr.IO(err)
	}
	return nil
}

// Kill terminates the session. An empty signal sends Ctrl-C first and
// escalates to SIGKILL after one second if the process hasn't exited;
// an explicit signal ("SIGTERM"/"SIGKILL") is sent directly.
func (s *Session) Kill(signal string) error {
	if s.Cmd.Process == nil {
		return nil
	}
	switch signal {
	case "SIGTERM":
		return s.Cmd.Process.Signal(terminateSignal())
	case "SIGKILL", "":
		if signal == "SIGKILL" {
			return s.Cmd.Process.Kill()
		}
		_, _ = s.Pty.Write([]byte{0x03})
		time.AfterFunc(time.Second, func() {
			if !s.isExited() {
				_ = s.Cmd.Process.Kill()
			}
		})
		return nil
	default:
		return apierr.Validation("unknown signal %q", signal)
	}
}

func (s *Session) isExited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

// LastActivityAt returns the last time data was read or written.
func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// Close releases the PTY and waits for the process to exit.
func (s *Session) Close() error {
	close(s.flushSignal)
	err := s.Pty.Close()
	if s.Cmd.Process != nil {
		_ = s.Cmd.Process.Kill()
		_, _ = s.Cmd.Process.Wait()
	}
	if err != nil {
		return apierr.IO(err)
	}
	return nil
}
