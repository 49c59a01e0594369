// Package browser is the headless-browser preview orchestrator (§4.8): per
// project, a set of go-rod tabs with exactly one active, viewport/device
// presets, dialog interception, console capture, DOM analysis, and
// screenshot/action sequencing.
package browser

import (
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"

	"github.com/coderoom/server/internal/apierr"
)

// DeviceSize is one of the named viewport presets (§4.8).
type DeviceSize string

const (
	DeviceDesktop DeviceSize = "desktop"
	DeviceLaptop  DeviceSize = "laptop"
	DeviceTablet  DeviceSize = "tablet"
	DeviceMobile  DeviceSize = "mobile"
)

// Rotation is the viewport orientation.
type Rotation string

const (
	RotationLandscape Rotation = "landscape"
	RotationPortrait  Rotation = "portrait"
)

type viewportPreset struct {
	width, height int
	rotation      Rotation
}

var devicePresets = map[DeviceSize]viewportPreset{
	DeviceDesktop: {1920, 1080, RotationLandscape},
	DeviceLaptop:  {1280, 800, RotationLandscape},
	DeviceTablet:  {820, 1050, RotationPortrait},
	DeviceMobile:  {393, 740, RotationPortrait},
}

const consoleRingLimit = 500

// ConsoleEntry is one buffered console message.
type ConsoleEntry struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingDialog is a JS dialog awaiting a client decision.
type PendingDialog struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Tab is one project-scoped headless browser tab.
type Tab struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	DeviceSize DeviceSize `json:"device_size"`
	Rotation   Rotation   `json:"rotation"`
	IsActive   bool       `json:"is_active"`

	page *rod.Page

	mu             sync.Mutex
	console        []ConsoleEntry
	pendingDialogs map[string]PendingDialog
	dialogCancel   func()
	consoleCancel  func()
}

func newTab(projectID, url string, size DeviceSize, rotation Rotation, page *rod.Page) *Tab {
	return &Tab{
		ID:             uuid.New().String(),
		ProjectID:      projectID,
		URL:            url,
		DeviceSize:     size,
		Rotation:       rotation,
		page:           page,
		pendingDialogs: make(map[string]PendingDialog),
	}
}

// consoleEntries returns a snapshot of the console ring buffer.
func (t *Tab) consoleEntries() []ConsoleEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ConsoleEntry, len(t.console))
	copy(out, t.console)
	return out
}

// appendConsole pushes an entry, dropping the oldest once the ring fills.
func (t *Tab) appendConsole(e ConsoleEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.console = append(t.console, e)
	if len(t.console) > consoleRingLimit {
		t.console = t.console[len(t.console)-consoleRingLimit:]
	}
}

func (t *Tab) clearConsole() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.console = nil
}

// addPendingDialog records a dialog awaiting a decision under d.ID.
func (t *Tab) addPendingDialog(d PendingDialog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingDialogs[d.ID] = d
}

func (t *Tab) popPendingDialog(id string) (PendingDialog, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.pendingDialogs[id]
	if ok {
		delete(t.pendingDialogs, id)
	}
	return d, ok
}

// dropAllDialogs forgets every pending dialog on close. It does not answer
// (accept or dismiss) any of them in the page; close then closes the page
// itself.
func (t *Tab) dropAllDialogs() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingDialogs = make(map[string]PendingDialog)
}

func (t *Tab) close() {
	if t.dialogCancel != nil {
		t.dialogCancel()
	}
	if t.consoleCancel != nil {
		t.consoleCancel()
	}
	t.dropAllDialogs()
	if t.page != nil {
		t.page.Close()
	}
}

func presetFor(size DeviceSize) (viewportPreset, apierr.Code, error) {
	p, ok := devicePresets[size]
	if !ok {
		return viewportPreset{}, apierr.CodeValidation, apierr.Validation("unknown device size: %s", size)
	}
	return p, "", nil
}
