package gateway

import (
	"context"
	"encoding/json"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/gitservice"
	"github.com/coderoom/server/pkg/protocol"
)

// registerGitHandlers mounts the git porcelain sub-router (§4.11) onto the
// merged MethodRouter.
func registerGitHandlers(r *MethodRouter, s *Server) {
	r.Handle(protocol.ChanGitStatus, s.handleGitStatus)
	r.Handle(protocol.ChanGitDiff, s.handleGitDiff)
	r.Handle(protocol.ChanGitLog, s.handleGitLog)
	r.Handle(protocol.ChanGitBranch, s.handleGitBranch)
	r.Handle(protocol.ChanGitStash, s.handleGitStash)
	r.Handle(protocol.ChanGitCommit, s.handleGitCommit)
}

// gitServiceFor resolves a project id (or an explicit path override) to a
// *gitservice.Service rooted at the project's working tree.
func (s *Server) gitServiceFor(ctx context.Context, projectID, projectPath string) (*gitservice.Service, error) {
	if projectPath != "" {
		return gitservice.New(projectPath), nil
	}
	if projectID == "" {
		return nil, apierr.Validation("project_id or project_path is required")
	}
	project, err := s.stores.Projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return gitservice.New(project.AbsolutePath), nil
}

type gitStatusParams struct {
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path,omitempty"`
}

func (s *Server) handleGitStatus(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p gitStatusParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	svc, err := s.gitServiceFor(ctx, p.ProjectID, p.ProjectPath)
	if err != nil {
		return nil, err
	}
	return svc.Status(ctx)
}

type gitDiffParams struct {
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path,omitempty"`
	Staged      bool   `json:"staged,omitempty"`
	Commit      string `json:"commit,omitempty"`
	Range       string `json:"range,omitempty"`
}

func (s *Server) handleGitDiff(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p gitDiffParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	svc, err := s.gitServiceFor(ctx, p.ProjectID, p.ProjectPath)
	if err != nil {
		return nil, err
	}
	diff, err := svc.Diff(ctx, p.Staged, p.Commit, p.Range)
	if err != nil {
		return nil, err
	}
	return map[string]string{"diff": diff}, nil
}

type gitLogParams struct {
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

func (s *Server) handleGitLog(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p gitLogParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	svc, err := s.gitServiceFor(ctx, p.ProjectID, p.ProjectPath)
	if err != nil {
		return nil, err
	}
	return svc.Log(ctx, p.Limit)
}

// gitBranchParams covers both "list branches" (Action == "" or "list") and
// the mutating sub-ops, matching the single dotted channel spec.md groups
// branch operations under.
type gitBranchParams struct {
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path,omitempty"`
	Action      string `json:"action,omitempty"` // "list" (default), "create", "checkout"
	Name        string `json:"name,omitempty"`
	Checkout    bool   `json:"checkout,omitempty"`
}

func (s *Server) handleGitBranch(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p gitBranchParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	svc, err := s.gitServiceFor(ctx, p.ProjectID, p.ProjectPath)
	if err != nil {
		return nil, err
	}
	switch p.Action {
	case "", "list":
		return svc.Branches(ctx)
	case "create":
		if p.Name == "" {
			return nil, apierr.Validation("name is required for branch create")
		}
		return nil, svc.CreateBranch(ctx, p.Name, p.Checkout)
	case "checkout":
		if p.Name == "" {
			return nil, apierr.Validation("name is required for branch checkout")
		}
		return nil, svc.Checkout(ctx, p.Name)
	default:
		return nil, apierr.Validation("unknown branch action: %s", p.Action)
	}
}

type gitStashParams struct {
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path,omitempty"`
	Action      string `json:"action"` // "list", "save", "pop", "drop"
	Message     string `json:"message,omitempty"`
	Index       int    `json:"index,omitempty"`
}

func (s *Server) handleGitStash(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p gitStashParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	svc, err := s.gitServiceFor(ctx, p.ProjectID, p.ProjectPath)
	if err != nil {
		return nil, err
	}
	switch p.Action {
	case "", "list":
		return svc.StashList(ctx)
	case "save":
		out, err := svc.StashSave(ctx, p.Message)
		return map[string]string{"output": out}, err
	case "pop":
		out, err := svc.StashPop(ctx, p.Index)
		return map[string]string{"output": out}, err
	case "drop":
		out, err := svc.StashDrop(ctx, p.Index)
		return map[string]string{"output": out}, err
	default:
		return nil, apierr.Validation("unknown stash action: %s", p.Action)
	}
}

type gitCommitParams struct {
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path,omitempty"`
	Message     string `json:"message"`
	Amend       bool   `json:"amend,omitempty"`
	Stage       bool   `json:"stage,omitempty"` // stage all changes before committing
}

func (s *Server) handleGitCommit(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p gitCommitParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.Message == "" && !p.Amend {
		return nil, apierr.Validation("message is required")
	}
	svc, err := s.gitServiceFor(ctx, p.ProjectID, p.ProjectPath)
	if err != nil {
		return nil, err
	}
	if p.Stage {
		if err := svc.Stage(ctx, nil); err != nil {
			return nil, err
		}
	}
	out, err := svc.Commit(ctx, p.Message, p.Amend)
	if err != nil {
		return nil, err
	}
	return map[string]string{"output": out}, nil
}
