package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/browser"
	"github.com/coderoom/server/pkg/protocol"
)

// registerBrowserHandlers mounts the headless-browser preview sub-router
// (§4.8 / C8) onto the merged MethodRouter.
func registerBrowserHandlers(r *MethodRouter, s *Server) {
	r.Handle(protocol.ChanPreviewListTabs, s.handleBrowserListTabs)
	r.Handle(protocol.ChanPreviewOpenTab, s.handleBrowserOpenTab)
	r.Handle(protocol.ChanPreviewSwitchTab, s.handleBrowserSwitchTab)
	r.Handle(protocol.ChanPreviewCloseTab, s.handleBrowserCloseTab)
	r.Handle(protocol.ChanPreviewNavigate, s.handleBrowserNavigate)
	r.Handle(protocol.ChanPreviewSetViewport, s.handleBrowserSetViewport)
	r.Handle(protocol.ChanPreviewDialogInput, s.handleBrowserDialogInput)
	r.Handle(protocol.ChanPreviewConsoleGet, s.handleBrowserConsoleGet)
	r.Handle(protocol.ChanPreviewConsoleClear, s.handleBrowserConsoleClear)
	r.Handle(protocol.ChanPreviewConsoleExecute, s.handleBrowserConsoleExecute)
	r.Handle(protocol.ChanPreviewAnalyzeDOM, s.handleBrowserAnalyzeDOM)
	r.Handle(protocol.ChanPreviewScreenshot, s.handleBrowserScreenshot)
	r.Handle(protocol.ChanPreviewActions, s.handleBrowserActions)
}

type browserTabParams struct {
	ProjectID string `json:"project_id"`
	TabID     string `json:"tab_id,omitempty"`
}

func (s *Server) handleBrowserListTabs(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserTabParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" {
		return nil, apierr.Validation("project_id is required")
	}
	s.rooms.joinProject(c, p.ProjectID)
	return s.browserTabs.ListTabs(p.ProjectID), nil
}

type browserOpenTabParams struct {
	ProjectID  string              `json:"project_id"`
	URL        string              `json:"url,omitempty"`
	DeviceSize browser.DeviceSize  `json:"device_size,omitempty"`
	Rotation   browser.Rotation    `json:"rotation,omitempty"`
}

func (s *Server) handleBrowserOpenTab(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserOpenTabParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" {
		return nil, apierr.Validation("project_id is required")
	}
	s.rooms.joinProject(c, p.ProjectID)
	tab, err := s.browserTabs.OpenTab(ctx, p.ProjectID, p.URL, p.DeviceSize, p.Rotation)
	if err != nil {
		return nil, err
	}
	s.EmitProject(p.ProjectID, protocol.ChanPreviewTabOpened, tab)
	return tab, nil
}

func (s *Server) handleBrowserSwitchTab(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserTabParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" || p.TabID == "" {
		return nil, apierr.Validation("project_id and tab_id are required")
	}
	tab, err := s.browserTabs.SwitchTab(p.ProjectID, p.TabID)
	s.mcp.ReleaseProject(p.ProjectID)
	return tab, err
}

func (s *Server) handleBrowserCloseTab(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserTabParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" || p.TabID == "" {
		return nil, apierr.Validation("project_id and tab_id are required")
	}
	err := s.browserTabs.CloseTab(p.ProjectID, p.TabID)
	s.mcp.ReleaseProject(p.ProjectID)
	return nil, err
}

type browserNavigateParams struct {
	ProjectID string `json:"project_id"`
	TabID     string `json:"tab_id,omitempty"`
	URL       string `json:"url"`
}

func (s *Server) handleBrowserNavigate(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserNavigateParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" || p.URL == "" {
		return nil, apierr.Validation("project_id and url are required")
	}
	tab, err := s.browserTabs.GetTab(p.ProjectID, p.TabID)
	if err != nil {
		return nil, err
	}
	if err := s.browserTabs.Navigate(tab, p.URL); err != nil {
		return nil, err
	}
	return tab, nil
}

type browserSetViewportParams struct {
	ProjectID  string             `json:"project_id"`
	TabID      string             `json:"tab_id,omitempty"`
	DeviceSize browser.DeviceSize `json:"device_size,omitempty"`
	Rotation   browser.Rotation   `json:"rotation,omitempty"`
}

func (s *Server) handleBrowserSetViewport(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserSetViewportParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" {
		return nil, apierr.Validation("project_id is required")
	}
	tab, err := s.browserTabs.GetTab(p.ProjectID, p.TabID)
	if err != nil {
		return nil, err
	}
	if err := s.browserTabs.SetViewport(tab, p.DeviceSize, p.Rotation); err != nil {
		return nil, err
	}
	return tab, nil
}

type browserDialogInputParams struct {
	ProjectID  string `json:"project_id"`
	TabID      string `json:"tab_id,omitempty"`
	DialogID   string `json:"dialog_id"`
	Accept     bool   `json:"accept"`
	PromptText string `json:"prompt_text,omitempty"`
}

func (s *Server) handleBrowserDialogInput(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserDialogInputParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" || p.DialogID == "" {
		return nil, apierr.Validation("project_id and dialog_id are required")
	}
	tab, err := s.browserTabs.GetTab(p.ProjectID, p.TabID)
	if err != nil {
		return nil, err
	}
	if err := s.browserTabs.ResolveDialog(tab, p.DialogID, p.Accept, p.PromptText); err != nil {
		if ae, ok := apierr.As(err); ok && ae.Code == apierr.CodeNotFound {
			slog.Warn("preview: unknown dialog id dropped", "project", p.ProjectID, "dialog_id", p.DialogID)
			return nil, nil
		}
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleBrowserConsoleGet(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserTabParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	tab, err := s.browserTabs.GetTab(p.ProjectID, p.TabID)
	if err != nil {
		return nil, err
	}
	return s.browserTabs.ConsoleGet(tab), nil
}

func (s *Server) handleBrowserConsoleClear(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserTabParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	tab, err := s.browserTabs.GetTab(p.ProjectID, p.TabID)
	if err != nil {
		return nil, err
	}
	s.browserTabs.ConsoleClear(tab)
	return nil, nil
}

type browserConsoleExecParams struct {
	ProjectID string `json:"project_id"`
	TabID     string `json:"tab_id,omitempty"`
	Script    string `json:"script"`
}

func (s *Server) handleBrowserConsoleExecute(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserConsoleExecParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.Script == "" {
		return nil, apierr.Validation("script is required")
	}
	tab, err := s.browserTabs.GetTab(p.ProjectID, p.TabID)
	if err != nil {
		return nil, err
	}
	result, err := s.browserTabs.ConsoleExecute(tab, p.Script)
	if err != nil {
		return nil, err
	}
	return map[string]string{"result": result}, nil
}

func (s *Server) handleBrowserAnalyzeDOM(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserTabParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	tab, err := s.browserTabs.GetTab(p.ProjectID, p.TabID)
	if err != nil {
		return nil, err
	}
	return s.browserTabs.AnalyzeDOM(tab)
}

func (s *Server) handleBrowserScreenshot(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserTabParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	tab, err := s.browserTabs.GetTab(p.ProjectID, p.TabID)
	if err != nil {
		return nil, err
	}
	png, err := s.browserTabs.Screenshot(tab)
	if err != nil {
		return nil, err
	}
	return map[string]string{"png_base64": png}, nil
}

type browserActionsParams struct {
	ProjectID string           `json:"project_id"`
	TabID     string           `json:"tab_id,omitempty"`
	Actions   []browser.Action `json:"actions"`
}

func (s *Server) handleBrowserActions(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p browserActionsParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if len(p.Actions) == 0 {
		return nil, apierr.Validation("actions is required")
	}
	tab, err := s.browserTabs.GetTab(p.ProjectID, p.TabID)
	if err != nil {
		return nil, err
	}
	results, err := s.browserTabs.RunActions(tab, p.Actions)
	if err != nil {
		return results, err
	}
	return results, nil
}
