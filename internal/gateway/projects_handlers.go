package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/coderoom/server/internal/apierr"
	"github.com/coderoom/server/internal/domain"
	"github.com/coderoom/server/pkg/protocol"
)

// registerProjectsHandlers mounts the project lifecycle sub-router onto the
// merged MethodRouter.
func registerProjectsHandlers(r *MethodRouter, s *Server) {
	r.Handle(protocol.ChanProjectsList, s.handleProjectsList)
	r.Handle(protocol.ChanProjectsCreate, s.handleProjectsCreate)
	r.Handle(protocol.ChanProjectsOpen, s.handleProjectsOpen)
	r.Handle(protocol.ChanProjectsDelete, s.handleProjectsDelete)
}

func (s *Server) handleProjectsList(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	return s.stores.Projects.List(ctx)
}

type projectsCreateParams struct {
	Name         string `json:"name"`
	AbsolutePath string `json:"absolute_path"`
}

func (s *Server) handleProjectsCreate(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p projectsCreateParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.Name == "" || p.AbsolutePath == "" {
		return nil, apierr.Validation("name and absolute_path are required")
	}
	now := time.Now()
	project := &domain.Project{
		ID:           uuid.New().String(),
		Name:         p.Name,
		AbsolutePath: p.AbsolutePath,
		CreatedAt:    now,
		LastOpenedAt: now,
	}
	if err := s.stores.Projects.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

type projectsOpenParams struct {
	ProjectID string `json:"project_id"`
}

// handleProjectsOpen joins the connection to the project's broadcast room,
// bumps LastOpenedAt, and returns the project record (§4.6 rooms are set at
// connect or first project-scoped call).
func (s *Server) handleProjectsOpen(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p projectsOpenParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" {
		return nil, apierr.Validation("project_id is required")
	}
	if err := s.stores.Projects.TouchOpened(ctx, p.ProjectID); err != nil {
		return nil, err
	}
	project, err := s.stores.Projects.Get(ctx, p.ProjectID)
	if err != nil {
		return nil, err
	}
	s.rooms.joinProject(c, p.ProjectID)
	return project, nil
}

type projectsDeleteParams struct {
	ProjectID string `json:"project_id"`
}

func (s *Server) handleProjectsDelete(ctx context.Context, c *Client, payload json.RawMessage) (interface{}, error) {
	var p projectsDeleteParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Validation("invalid payload: %v", err)
	}
	if p.ProjectID == "" {
		return nil, apierr.Validation("project_id is required")
	}
	if err := s.stores.Projects.Delete(ctx, p.ProjectID); err != nil {
		return nil, err
	}
	return nil, nil
}
