package tunnel

import "testing"

func TestStopUnknownIDIsNoop(t *testing.T) {
	m := NewManager(nil)
	if err := m.Stop("does-not-exist"); err != nil {
		t.Fatalf("Stop on unknown id should be a no-op, got: %v", err)
	}
}

func TestURLUnknownIDReturnsEmpty(t *testing.T) {
	m := NewManager(nil)
	if got := m.URL("does-not-exist"); got != "" {
		t.Fatalf("URL for unknown id = %q, want empty", got)
	}
}

func TestStopAllWithNoTunnelsIsSafe(t *testing.T) {
	m := NewManager(nil)
	m.StopAll()
}

func TestStartReturnsExistingURLWithoutReprobing(t *testing.T) {
	var progressed []Stage
	m := NewManager(func(tunnelID, projectID string, stage Stage, detail string) {
		progressed = append(progressed, stage)
	})

	// Seed an already-connected tunnel directly, bypassing the real
	// tailscale CLI invocation Start would otherwise make.
	m.mu.Lock()
	m.tunnels["t1"] = &tunnelState{projectID: "proj-1", port: 3000, url: "https://existing.example.ts.net"}
	m.mu.Unlock()

	url, err := m.Start(nil, "t1", "proj-1", 3000, 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if url != "https://existing.example.ts.net" {
		t.Fatalf("Start returned %q, want the pre-seeded URL", url)
	}
	if len(progressed) != 0 {
		t.Fatalf("expected no progress events for an already-connected tunnel, got %v", progressed)
	}
}

func TestEmitIsNilSafe(t *testing.T) {
	m := NewManager(nil)
	m.emit("t1", "proj-1", StageConnected, "https://example.ts.net")
}
