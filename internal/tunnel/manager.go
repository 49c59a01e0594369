// Package tunnel supervises outbound tunnels that expose a project's local
// dev server on a public URL (§4.7), built around the tailscale funnel
// CLI/daemon. It does not download or install the tailscale binary; it
// only checks that one is on PATH.
package tunnel

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"tailscale.com/client/tailscale"

	"github.com/coderoom/server/internal/apierr"
)

// Stage is one step of a tunnel's startup progress, emitted in order.
type Stage string

const (
	StageCheckingBinary    Stage = "checking-binary"
	StageDownloadingBinary Stage = "downloading-binary"
	StageBinaryReady       Stage = "binary-ready"
	StageStartingTunnel    Stage = "starting-tunnel"
	StageGeneratingURL     Stage = "generating-url"
	StageConnected         Stage = "connected"
)

const urlGenerationTimeout = 90 * time.Second

// ProgressFunc is invoked for every stage transition of a tunnel; detail
// carries extra text where there is any (the public URL on StageConnected).
// It is not invoked when Start fails.
type ProgressFunc func(tunnelID, projectID string, stage Stage, detail string)

// tunnelState is the live, per-tunnel bookkeeping the Manager guards with
// its mutex: a struct holding a mutex-guarded map with narrow mutating
// methods.
type tunnelState struct {
	projectID string
	port      int
	url       string
	stopTimer *time.Timer
	cancel    context.CancelFunc
}

// Manager owns the set of live tunnels for the process. Starting is
// idempotent per project+port key; Stop is idempotent; all tunnels are
// killed on process shutdown via StopAll.
type Manager struct {
	mu               sync.RWMutex
	tunnels          map[string]*tunnelState
	binaryChecked    bool
	binaryAvailable  bool
	lc               *tailscale.LocalClient
	onProgress       ProgressFunc
}

// NewManager constructs a tunnel manager. onProgress may be nil.
func NewManager(onProgress ProgressFunc) *Manager {
	return &Manager{
		tunnels:    make(map[string]*tunnelState),
		lc:         &tailscale.LocalClient{},
		onProgress: onProgress,
	}
}

func (m *Manager) emit(id, projectID string, stage Stage, detail string) {
	if m.onProgress != nil {
		m.onProgress(id, projectID, stage, detail)
	}
}

// checkBinary verifies the tailscale CLI is on PATH, gated by a one-shot
// boolean so repeat Start calls don't re-probe the filesystem.
func (m *Manager) checkBinary(ctx context.Context, id, projectID string) error {
	m.mu.Lock()
	checked, available := m.binaryChecked, m.binaryAvailable
	m.mu.Unlock()
	if checked {
		if !available {
			return apierr.New(apierr.CodeIO, "tailscale binary not found; install it to enable tunnels")
		}
		return nil
	}

	m.emit(id, projectID, StageCheckingBinary, "")
	_, err := exec.LookPath("tailscale")
	available = err == nil
	if !available {
		m.emit(id, projectID, StageDownloadingBinary, "tailscale is not installed")
	}

	m.mu.Lock()
	m.binaryChecked = true
	m.binaryAvailable = available
	m.mu.Unlock()

	if !available {
		return apierr.New(apierr.CodeIO, "tailscale binary not found; install it to enable tunnels")
	}
	m.emit(id, projectID, StageBinaryReady, "")
	return nil
}

// Start checks once that the tailscale binary is on PATH (it is never
// installed; a missing binary fails Start with an IO error), brings up a
// funnel for port, and auto-stops it after autoStop elapses (0 disables
// the timer). id should be
// stable per project+port so repeated calls are idempotent.
func (m *Manager) Start(ctx context.Context, id, projectID string, port int, autoStop time.Duration) (string, error) {
	m.mu.RLock()
	existing, ok := m.tunnels[id]
	m.mu.RUnlock()
	if ok {
		return existing.url, nil
	}

	if err := m.checkBinary(ctx, id, projectID); err != nil {
		return "", err
	}

	genCtx, cancel := context.WithTimeout(ctx, urlGenerationTimeout)
	defer cancel()

	m.emit(id, projectID, StageStartingTunnel, "")
	if err := m.runTailscale(genCtx, "funnel", fmt.Sprintf("%d", port), "on"); err != nil {
		return "", apierr.Wrap(apierr.CodeIO, "start tunnel", err)
	}

	m.emit(id, projectID, StageGeneratingURL, "")
	url, err := m.resolveURL(genCtx, port)
	if err != nil {
		m.runTailscale(context.Background(), "funnel", fmt.Sprintf("%d", port), "off")
		return "", err
	}

	state := &tunnelState{projectID: projectID, port: port, url: url}
	if autoStop > 0 {
		state.stopTimer = time.AfterFunc(autoStop, func() { m.Stop(id) })
	}

	m.mu.Lock()
	m.tunnels[id] = state
	m.mu.Unlock()

	m.emit(id, projectID, StageConnected, url)
	return url, nil
}

// resolveURL derives the public funnel URL from this tailnet node's
// DNS name, the stable, long-supported shape of `tailscale.LocalClient`'s
// status response.
func (m *Manager) resolveURL(ctx context.Context, port int) (string, error) {
	st, err := m.lc.Status(ctx)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeIO, "tailscale status", err)
	}
	if st.Self == nil || st.Self.DNSName == "" {
		return "", apierr.New(apierr.CodeIO, "tailscale node has no DNS name yet")
	}
	host := strings.TrimSuffix(st.Self.DNSName, ".")
	return fmt.Sprintf("https://%s", host), nil
}

// Stop tears down a tunnel. Idempotent: stopping an unknown id is a no-op.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	state, ok := m.tunnels[id]
	if ok {
		delete(m.tunnels, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if state.stopTimer != nil {
		state.stopTimer.Stop()
	}
	if state.cancel != nil {
		state.cancel()
	}
	return m.runTailscale(context.Background(), "funnel", fmt.Sprintf("%d", state.port), "off")
}

// StopAll kills every live tunnel, called on process shutdown (§5).
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.tunnels))
	for id := range m.tunnels {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.Stop(id)
	}
}

// URL returns the public URL for a live tunnel, or "" if not found.
func (m *Manager) URL(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if state, ok := m.tunnels[id]; ok {
		return state.url
	}
	return ""
}

func (m *Manager) runTailscale(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "tailscale", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}
