package pty

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/coderoom/server/internal/env"
)

type recordingSink struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingSink) AppendOutput(sessionID string, seq uint64, data []byte) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func testSanitizer(t *testing.T) *env.Sanitizer {
	t.Helper()
	s, err := env.Load(t.TempDir() + "/.env")
	if err != nil {
		t.Fatalf("env.Load: %v", err)
	}
	return s
}

func TestCreateIsIdempotent(t *testing.T) {
	if os.Getenv("SHELL") == "" {
		os.Setenv("SHELL", "/bin/sh")
	}
	sink := &recordingSink{}
	mgr := NewManager(testSanitizer(t), sink)
	defer mgr.CloseAll()

	s1, err := mgr.Create("sess1", "proj1", t.TempDir(), 24, 80)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s2, err := mgr.Create("sess1", "proj1", t.TempDir(), 24, 80)
	if err != nil {
		t.Fatalf("Create (again): %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected Create to return the existing session for a reused id")
	}
	if len(mgr.List()) != 1 {
		t.Fatalf("expected exactly one live session, got %d", len(mgr.List()))
	}
}

func TestWriteProducesOutput(t *testing.T) {
	if os.Getenv("SHELL") == "" {
		os.Setenv("SHELL", "/bin/sh")
	}
	sink := &recordingSink{}
	mgr := NewManager(testSanitizer(t), sink)
	defer mgr.CloseAll()

	s, err := mgr.Create("sess1", "proj1", t.TempDir(), 24, 80)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var mu sync.Mutex
	var buf bytes.Buffer
	s.AddListener(func(seq uint64, data []byte) {
		mu.Lock()
		buf.Write(data)
		mu.Unlock()
	})

	if err := mgr.Write("sess1", []byte("echo hello-pty\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := buf.String()
		mu.Unlock()
		if bytes.Contains([]byte(got), []byte("hello-pty")) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected output to contain hello-pty, got: %q", buf.String())
}

func TestKillUnregistersSession(t *testing.T) {
	if os.Getenv("SHELL") == "" {
		os.Setenv("SHELL", "/bin/sh")
	}
	mgr := NewManager(testSanitizer(t), nil)
	defer mgr.CloseAll()

	if _, err := mgr.Create("sess1", "proj1", t.TempDir(), 24, 80); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Kill("sess1", "SIGKILL"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if _, err := mgr.Get("sess1"); err == nil {
		t.Fatalf("expected Get to fail after Kill")
	}
}
