package service

import (
	"context"

	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
)

var workspaceKind = entityKind{
	Type:   model.EntityWorkspace,
	Unique: "slug",
	Refs: []ref{
		{Field: "application", Type: model.EntityApplication},
		{Field: "organization", Type: model.EntityOrganization},
	},
}

// WorkspaceService handles workspace commands. A workspace binds one
// application to one organization.
type WorkspaceService struct {
	core *Core
}

func NewWorkspaceService(core *Core) *WorkspaceService { return &WorkspaceService{core: core} }

type CreateWorkspaceInput struct {
	ID           string `json:"id" validate:"omitempty,max=191"`
	Name         string `json:"name" validate:"required,max=128"`
	Slug         string `json:"slug" validate:"required,max=64"`
	Application  string `json:"application" validate:"required"`
	Organization string `json:"organization" validate:"required"`
}

func (in CreateWorkspaceInput) values() map[string]any {
	return map[string]any{
		"name":         in.Name,
		"slug":         in.Slug,
		"application":  in.Application,
		"organization": in.Organization,
	}
}

func (s *WorkspaceService) Create(ctx context.Context, actor *string, in CreateWorkspaceInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.create(ctx, workspaceKind, in.ID, actor, in.values())
}

func (s *WorkspaceService) CreateOrRestore(ctx context.Context, actor *string, in CreateWorkspaceInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.createOrRestore(ctx, workspaceKind, in.ID, actor, in.values())
}

func (s *WorkspaceService) ChangeName(ctx context.Context, actor *string, id string, in RenameInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.change(ctx, workspaceKind, id, eventstore.CommandChangeName, actor, map[string]any{"name": in.Name}, eventOpts{})
}

func (s *WorkspaceService) ChangeSlug(ctx context.Context, actor *string, id string, in ChangeSlugInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.change(ctx, workspaceKind, id, eventstore.CommandChangeSlug, actor, map[string]any{"slug": in.Slug}, eventOpts{})
}

func (s *WorkspaceService) Delete(ctx context.Context, actor *string, id string) ([]eventstore.Result, error) {
	return s.core.delete(ctx, workspaceKind, id, actor)
}

func (s *WorkspaceService) Restore(ctx context.Context, actor *string, id string) ([]eventstore.Result, error) {
	return s.core.restore(ctx, workspaceKind, id, actor)
}
