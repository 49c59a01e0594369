package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/coderoom/server/internal/apierr"
)

// DialogEventFunc is invoked when a dialog opens on a tab, so the gateway
// can broadcast preview:browser-dialog to the project's room.
type DialogEventFunc func(tab *Tab, dialog PendingDialog)

// projectTabs is the per-project tab set the Manager guards with its
// mutex, mirroring channels.Manager's "map of live things" shape.
type projectTabs struct {
	tabs     map[string]*Tab
	activeID string
}

// Manager owns every project's browser tabs, backed by a single shared
// go-rod browser connection launched lazily on first use.
type Manager struct {
	mu       sync.RWMutex
	browser  *rod.Browser
	projects map[string]*projectTabs
	headless bool
	onDialog DialogEventFunc
}

// NewManager constructs a tab manager. The underlying browser process is
// not launched until the first OpenTab call.
func NewManager(headless bool, onDialog DialogEventFunc) *Manager {
	return &Manager{
		projects: make(map[string]*projectTabs),
		headless: headless,
		onDialog: onDialog,
	}
}

func (m *Manager) ensureBrowser() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		return m.browser, nil
	}
	b := rod.New()
	if err := b.Connect(); err != nil {
		return nil, apierr.Wrap(apierr.CodeIO, "launch browser", err)
	}
	m.browser = b
	return b, nil
}

func (m *Manager) projectSet(projectID string) *projectTabs {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.projects[projectID]
	if !ok {
		ps = &projectTabs{tabs: make(map[string]*Tab)}
		m.projects[projectID] = ps
	}
	return ps
}

// ListTabs returns every tab for a project.
func (m *Manager) ListTabs(projectID string) []*Tab {
	ps := m.projectSet(projectID)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Tab, 0, len(ps.tabs))
	for _, t := range ps.tabs {
		out = append(out, t)
	}
	return out
}

// OpenTab creates a new tab for a project (installing it as the only active
// tab — §3 "at most one Browser Tab has is_active=true").
func (m *Manager) OpenTab(ctx context.Context, projectID, url string, size DeviceSize, rotation Rotation) (*Tab, error) {
	if size == "" {
		size = DeviceLaptop
	}
	preset, _, err := presetFor(size)
	if err != nil {
		return nil, err
	}
	if rotation == "" {
		rotation = preset.rotation
	}
	if url == "" {
		url = "about:blank"
	}

	b, err := m.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeIO, "open tab", err)
	}

	tab := newTab(projectID, url, size, rotation, page)
	if err := m.applyViewport(tab); err != nil {
		page.Close()
		return nil, err
	}
	m.installDialogHandler(tab)
	m.installConsoleCapture(tab)

	ps := m.projectSet(projectID)
	m.mu.Lock()
	if ps.activeID != "" {
		if prev, ok := ps.tabs[ps.activeID]; ok {
			prev.IsActive = false
		}
	}
	tab.IsActive = true
	ps.activeID = tab.ID
	ps.tabs[tab.ID] = tab
	m.mu.Unlock()

	return tab, nil
}

// SwitchTab makes tabID the project's active tab.
func (m *Manager) SwitchTab(projectID, tabID string) (*Tab, error) {
	ps := m.projectSet(projectID)
	m.mu.Lock()
	defer m.mu.Unlock()
	tab, ok := ps.tabs[tabID]
	if !ok {
		return nil, apierr.NotFound("tab not found: %s", tabID)
	}
	if prev, ok := ps.tabs[ps.activeID]; ok {
		prev.IsActive = false
	}
	tab.IsActive = true
	ps.activeID = tabID
	return tab, nil
}

// CloseTab closes and forgets a tab. It does not touch MCP control; the
// gateway's close-tab handler releases that after calling CloseTab.
func (m *Manager) CloseTab(projectID, tabID string) error {
	ps := m.projectSet(projectID)
	m.mu.Lock()
	tab, ok := ps.tabs[tabID]
	if ok {
		delete(ps.tabs, tabID)
		if ps.activeID == tabID {
			ps.activeID = ""
		}
	}
	m.mu.Unlock()
	if !ok {
		return apierr.NotFound("tab not found: %s", tabID)
	}
	tab.close()
	return nil
}

// FindProjectForTab locates which project owns tabID, for callers (the
// WebRTC bridge) that only have a tab id to work with.
func (m *Manager) FindProjectForTab(tabID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for projectID, ps := range m.projects {
		if _, ok := ps.tabs[tabID]; ok {
			return projectID, true
		}
	}
	return "", false
}

// GetTab returns a tab by id, or the project's active tab if tabID is "".
func (m *Manager) GetTab(projectID, tabID string) (*Tab, error) {
	ps := m.projectSet(projectID)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tabID == "" {
		tabID = ps.activeID
	}
	tab, ok := ps.tabs[tabID]
	if !ok {
		return nil, apierr.NotFound("no such tab")
	}
	return tab, nil
}

// Navigate loads url into tab.
func (m *Manager) Navigate(tab *Tab, url string) error {
	if err := tab.page.Navigate(url); err != nil {
		return apierr.Wrap(apierr.CodeIO, "navigate", err)
	}
	tab.page.MustWaitLoad()
	tab.URL = url
	if info, err := tab.page.Info(); err == nil {
		tab.Title = info.Title
	}
	return nil
}

// SetViewport updates a tab's device size/rotation and reapplies it.
func (m *Manager) SetViewport(tab *Tab, size DeviceSize, rotation Rotation) error {
	if size != "" {
		if _, _, err := presetFor(size); err != nil {
			return err
		}
		tab.DeviceSize = size
	}
	if rotation != "" {
		tab.Rotation = rotation
	}
	return m.applyViewport(tab)
}

func (m *Manager) applyViewport(tab *Tab) error {
	preset, _, err := presetFor(tab.DeviceSize)
	if err != nil {
		return err
	}
	w, h := preset.width, preset.height
	if tab.Rotation == RotationPortrait && preset.rotation == RotationLandscape ||
		tab.Rotation == RotationLandscape && preset.rotation == RotationPortrait {
		w, h = h, w
	}
	mobile := tab.DeviceSize == DeviceMobile || tab.DeviceSize == DeviceTablet
	if err := tab.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: w, Height: h, DeviceScaleFactor: 1, Mobile: mobile,
	}); err != nil {
		return apierr.Wrap(apierr.CodeIO, "set viewport", err)
	}
	return nil
}

// installDialogHandler intercepts JS dialogs by registering a dialog
// listener on a page that has already been created at its URL. No
// print-interception binding is installed, and dialogs raised before the
// listener is registered are not captured.
func (m *Manager) installDialogHandler(tab *Tab) {
	wait, handle := tab.page.HandleDialog()
	ctx, cancel := context.WithCancel(context.Background())
	tab.dialogCancel = cancel
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			e := wait()
			if e == nil {
				return
			}
			d := PendingDialog{ID: uuid.New().String(), Type: string(e.Type), Message: e.Message}
			tab.addPendingDialog(d)
			if m.onDialog != nil {
				m.onDialog(tab, d)
			}
			// The caller resolves via ResolveDialog; this goroutine simply
			// keeps waiting for the next dialog, matching per-tab serialized
			// dialog handling.
			_ = handle
		}
	}()
}

// ResolveDialog answers a pending dialog: accept with promptText, or
// dismiss. Unknown dialog ids are logged and dropped by the caller.
func (m *Manager) ResolveDialog(tab *Tab, dialogID string, accept bool, promptText string) error {
	if _, ok := tab.popPendingDialog(dialogID); !ok {
		return apierr.NotFound("unknown dialog: %s", dialogID)
	}
	_, handle := tab.page.HandleDialog()
	return handle(accept, promptText)
}

// installConsoleCapture buffers the page's console output per tab.
func (m *Manager) installConsoleCapture(tab *Tab) {
	ctx, cancel := context.WithCancel(context.Background())
	tab.consoleCancel = cancel
	page := tab.page.Context(ctx)
	go page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		var text string
		for _, arg := range e.Args {
			if arg.Value.Val() != nil {
				text += fmt.Sprintf("%v ", arg.Value.Val())
			}
		}
		tab.appendConsole(ConsoleEntry{Level: string(e.Type), Text: text, Timestamp: time.Now()})
	})()
}

// ConsoleGet returns the buffered console entries for a tab.
func (m *Manager) ConsoleGet(tab *Tab) []ConsoleEntry { return tab.consoleEntries() }

// ConsoleClear empties a tab's console ring.
func (m *Manager) ConsoleClear(tab *Tab) { tab.clearConsole() }

// ConsoleExecute runs js in the page context and returns its stringified
// result.
func (m *Manager) ConsoleExecute(tab *Tab, js string) (string, error) {
	res, err := tab.page.Eval(js)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeIO, "console execute", err)
	}
	return fmt.Sprintf("%v", res.Value.Val()), nil
}

// DOMAnalysis is the structured result of analyze_dom (§4.8).
type DOMAnalysis struct {
	Navigation struct {
		Links []string `json:"links"`
	} `json:"navigation"`
	Structure struct {
		Headings []string `json:"headings"`
		Sections int      `json:"sections"`
	} `json:"structure"`
	Content struct {
		Paragraphs []string `json:"paragraphs"`
	} `json:"content"`
	Forms   int `json:"forms"`
	Summary struct {
		URL             string `json:"url"`
		Title           string `json:"title"`
		HasIframes      bool   `json:"hasIframes"`
		HasCaptcha      bool   `json:"hasCaptcha"`
		ScrollableHeight int    `json:"scrollableHeight"`
		ViewportHeight  int    `json:"viewportHeight"`
	} `json:"summary"`
}

const maxAnalyzedParagraphs = 100

// captchaSelectors is a disjunction over well-known CAPTCHA widget markup.
var captchaSelectors = []string{
	"iframe[src*='recaptcha']",
	"div.g-recaptcha",
	"iframe[src*='hcaptcha']",
	"div.h-captcha",
	"iframe[title*='challenge']",
}

// AnalyzeDOM runs the page-side analysis script and assembles the result.
func (m *Manager) AnalyzeDOM(tab *Tab) (*DOMAnalysis, error) {
	analysis := &DOMAnalysis{}

	links, err := evalStrings(tab.page, `Array.from(document.querySelectorAll('a[href]')).map(a=>a.href)`)
	if err != nil {
		return nil, err
	}
	analysis.Navigation.Links = links

	headings, err := evalStrings(tab.page, `Array.from(document.querySelectorAll('h1,h2,h3,h4,h5,h6')).map(h=>h.textContent.trim())`)
	if err != nil {
		return nil, err
	}
	analysis.Structure.Headings = headings

	sections, _ := tab.page.Eval(`document.querySelectorAll('section,article,main').length`)
	if sections != nil {
		analysis.Structure.Sections = int(sections.Value.Num())
	}

	paragraphs, err := evalStrings(tab.page, `Array.from(document.querySelectorAll('p')).map(p=>p.textContent.trim()).filter(t=>t.length>0)`)
	if err != nil {
		return nil, err
	}
	analysis.Content.Paragraphs = dedupeLimit(paragraphs, maxAnalyzedParagraphs)

	forms, _ := tab.page.Eval(`document.querySelectorAll('form').length`)
	if forms != nil {
		analysis.Forms = int(forms.Value.Num())
	}

	info, _ := tab.page.Info()
	if info != nil {
		analysis.Summary.URL = info.URL
		analysis.Summary.Title = info.Title
	}
	iframes, _ := tab.page.Eval(`document.querySelectorAll('iframe').length > 0`)
	if iframes != nil {
		analysis.Summary.HasIframes = iframes.Value.Bool()
	}
	for _, sel := range captchaSelectors {
		res, err := tab.page.Eval(fmt.Sprintf(`document.querySelector(%q) !== null`, sel))
		if err == nil && res.Value.Bool() {
			analysis.Summary.HasCaptcha = true
			break
		}
	}
	scrollH, _ := tab.page.Eval(`document.documentElement.scrollHeight`)
	if scrollH != nil {
		analysis.Summary.ScrollableHeight = int(scrollH.Value.Num())
	}
	viewH, _ := tab.page.Eval(`window.innerHeight`)
	if viewH != nil {
		analysis.Summary.ViewportHeight = int(viewH.Value.Num())
	}

	return analysis, nil
}

func evalStrings(page *rod.Page, js string) ([]string, error) {
	res, err := page.Eval(js)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeIO, "dom analysis", err)
	}
	var out []string
	for _, v := range res.Value.Arr() {
		out = append(out, v.Str())
	}
	return out, nil
}

func dedupeLimit(in []string, limit int) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Screenshot captures the tab's viewport as a base64-encoded PNG.
func (m *Manager) Screenshot(tab *Tab) (string, error) {
	data, err := tab.page.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return "", apierr.Wrap(apierr.CodeIO, "screenshot", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// interActionDelay is the default pacing between keystrokes of a type
// action, matching a human typing cadence closely enough to avoid tripping
// bot-detection on the target page.
const interActionDelay = 30 * time.Millisecond

// Action is one step of an actions() sequence (§4.8).
type Action struct {
	Type        string  `json:"type"` // click|type|move|scroll|wait|extract_data
	Selector    string  `json:"selector,omitempty"`
	Text        string  `json:"text,omitempty"`
	ClearFirst  *bool   `json:"clear_first,omitempty"`
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
	DeltaX      float64 `json:"delta_x,omitempty"`
	DeltaY      float64 `json:"delta_y,omitempty"`
	DurationMs  int     `json:"duration_ms,omitempty"`
	Extract     string  `json:"extract,omitempty"` // selector for extract_data
}

// ActionResult is the outcome of one executed Action.
type ActionResult struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Err  string `json:"error,omitempty"`
}

// RunActions executes a sequence of actions against tab in order, stopping
// at the first failure. Each result (including the failing one) is
// returned so the caller can report how far the sequence progressed.
func (m *Manager) RunActions(tab *Tab, actions []Action) ([]ActionResult, error) {
	results := make([]ActionResult, 0, len(actions))
	for _, a := range actions {
		res := ActionResult{Type: a.Type}
		if err := m.runAction(tab, a, &res); err != nil {
			res.Err = err.Error()
			results = append(results, res)
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (m *Manager) runAction(tab *Tab, a Action, res *ActionResult) error {
	switch a.Type {
	case "click":
		el, err := tab.page.Element(a.Selector)
		if err != nil {
			return apierr.Wrap(apierr.CodeIO, "click: element not found", err)
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return apierr.Wrap(apierr.CodeIO, "click", err)
		}
	case "type":
		el, err := tab.page.Element(a.Selector)
		if err != nil {
			return apierr.Wrap(apierr.CodeIO, "type: element not found", err)
		}
		clearFirst := a.ClearFirst == nil || *a.ClearFirst
		if clearFirst {
			if err := el.SelectAllText(); err == nil {
				el.Input("")
			}
		}
		for _, r := range a.Text {
			if err := el.Input(string(r)); err != nil {
				return apierr.Wrap(apierr.CodeIO, "type", err)
			}
			time.Sleep(interActionDelay)
		}
	case "move":
		if err := tab.page.Mouse.MoveTo(proto.NewPoint(a.X, a.Y)); err != nil {
			return apierr.Wrap(apierr.CodeIO, "move", err)
		}
	case "scroll":
		if err := tab.page.Mouse.Scroll(a.DeltaX, a.DeltaY, 1); err != nil {
			return apierr.Wrap(apierr.CodeIO, "scroll", err)
		}
	case "wait":
		d := time.Duration(a.DurationMs) * time.Millisecond
		if d <= 0 {
			d = interActionDelay
		}
		time.Sleep(d)
	case "extract_data":
		el, err := tab.page.Element(a.Extract)
		if err != nil {
			return apierr.Wrap(apierr.CodeIO, "extract_data: element not found", err)
		}
		text, err := el.Text()
		if err != nil {
			return apierr.Wrap(apierr.CodeIO, "extract_data", err)
		}
		res.Data = text
	default:
		return apierr.Validation("unknown action type: %s", a.Type)
	}
	return nil
}
