package mcp

import (
	"context"

	"github.com/coderoom/server/internal/browser"
)

// registerBrowserTools declares the small, fixed tool set spec.md §4.10
// names: tabs, navigate, actions, analyze_dom, screenshot, console.
func (d *Dispatcher) registerBrowserTools() {
	d.Register(&Tool{
		Name:        "tabs",
		Description: "List the open preview browser tabs for a project.",
		Schema:      map[string]interface{}{"type": "object", "properties": map[string]interface{}{"project_id": map[string]string{"type": "string"}}},
		Handler: func(ctx context.Context, projectID string, args map[string]interface{}) (*ToolResult, error) {
			tabs := d.browserTabs.ListTabs(projectID)
			return textResult("%d tab(s) open", len(tabs)), nil
		},
	})

	d.Register(&Tool{
		Name:        "navigate",
		Description: "Navigate the project's active preview tab to a URL, opening one if none exists.",
		Schema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"project_id": map[string]string{"type": "string"}, "url": map[string]string{"type": "string"}},
			"required":   []string{"url"},
		},
		Handler: func(ctx context.Context, projectID string, args map[string]interface{}) (*ToolResult, error) {
			url := argString(args, "url")
			tab, err := d.browserTabs.GetTab(projectID, "")
			if err != nil {
				tab, err = d.browserTabs.OpenTab(ctx, projectID, url, browser.DeviceLaptop, "")
				if err != nil {
					return nil, err
				}
				return textResult("opened %s", tab.URL), nil
			}
			if err := d.browserTabs.Navigate(tab, url); err != nil {
				return nil, err
			}
			return textResult("navigated to %s", url), nil
		},
	})

	d.Register(&Tool{
		Name:        "actions",
		Description: "Run a sequence of click|type|move|scroll|wait|extract_data actions against the active tab.",
		Schema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"project_id": map[string]string{"type": "string"}, "actions": map[string]string{"type": "array"}},
			"required":   []string{"actions"},
		},
		Handler: func(ctx context.Context, projectID string, args map[string]interface{}) (*ToolResult, error) {
			tab, err := d.browserTabs.GetTab(projectID, "")
			if err != nil {
				return nil, err
			}
			actions, err := decodeActions(args["actions"])
			if err != nil {
				return nil, err
			}
			results, err := d.browserTabs.RunActions(tab, actions)
			if err != nil {
				return &ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return textResult("%d action(s) completed", len(results)), nil
		},
	})

	d.Register(&Tool{
		Name:        "analyze_dom",
		Description: "Analyze the active tab's DOM: links, headings, paragraphs, forms, and page summary.",
		Schema:      map[string]interface{}{"type": "object", "properties": map[string]interface{}{"project_id": map[string]string{"type": "string"}}},
		Handler: func(ctx context.Context, projectID string, args map[string]interface{}) (*ToolResult, error) {
			tab, err := d.browserTabs.GetTab(projectID, "")
			if err != nil {
				return nil, err
			}
			analysis, err := d.browserTabs.AnalyzeDOM(tab)
			if err != nil {
				return nil, err
			}
			return textResult("%s: %d links, %d headings, %d paragraphs", analysis.Summary.Title, len(analysis.Navigation.Links), len(analysis.Structure.Headings), len(analysis.Content.Paragraphs)), nil
		},
	})

	d.Register(&Tool{
		Name:        "screenshot",
		Description: "Capture the active tab's viewport as a base64 PNG.",
		Schema:      map[string]interface{}{"type": "object", "properties": map[string]interface{}{"project_id": map[string]string{"type": "string"}}},
		Handler: func(ctx context.Context, projectID string, args map[string]interface{}) (*ToolResult, error) {
			tab, err := d.browserTabs.GetTab(projectID, "")
			if err != nil {
				return nil, err
			}
			png, err := d.browserTabs.Screenshot(tab)
			if err != nil {
				return nil, err
			}
			return &ToolResult{Content: png}, nil
		},
	})

	d.Register(&Tool{
		Name:        "console",
		Description: "Read the active tab's buffered console output.",
		Schema:      map[string]interface{}{"type": "object", "properties": map[string]interface{}{"project_id": map[string]string{"type": "string"}}},
		Handler: func(ctx context.Context, projectID string, args map[string]interface{}) (*ToolResult, error) {
			tab, err := d.browserTabs.GetTab(projectID, "")
			if err != nil {
				return nil, err
			}
			entries := d.browserTabs.ConsoleGet(tab)
			return textResult("%d console entr(ies)", len(entries)), nil
		},
	})
}

// decodeActions converts the loosely-typed MCP argument value into
// browser.Action values.
func decodeActions(raw interface{}) ([]browser.Action, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]browser.Action, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		a := browser.Action{
			Type:       argString(m, "type"),
			Selector:   argString(m, "selector"),
			Text:       argString(m, "text"),
			X:          argFloat(m, "x"),
			Y:          argFloat(m, "y"),
			DeltaX:     argFloat(m, "delta_x"),
			DeltaY:     argFloat(m, "delta_y"),
			DurationMs: int(argFloat(m, "duration_ms")),
			Extract:    argString(m, "extract"),
		}
		out = append(out, a)
	}
	return out, nil
}
