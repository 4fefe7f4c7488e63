package service

import (
	"context"

	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
)

var organizationKind = entityKind{Type: model.EntityOrganization, Unique: "slug"}

// OrganizationService handles organization commands. Slugs are unique.
type OrganizationService struct {
	core *Core
}

func NewOrganizationService(core *Core) *OrganizationService {
	return &OrganizationService{core: core}
}

type CreateOrganizationInput struct {
	ID   string `json:"id" validate:"omitempty,max=191"`
	Name string `json:"name" validate:"required,max=128"`
	Slug string `json:"slug" validate:"required,max=64"`
}

func (s *OrganizationService) Create(ctx context.Context, actor *string, in CreateOrganizationInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.create(ctx, organizationKind, in.ID, actor, map[string]any{"name": in.Name, "slug": in.Slug})
}

func (s *OrganizationService) CreateOrRestore(ctx context.Context, actor *string, in CreateOrganizationInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.createOrRestore(ctx, organizationKind, in.ID, actor, map[string]any{"name": in.Name, "slug": in.Slug})
}

type RenameInput struct {
	Name string `json:"name" validate:"required,max=128"`
}

func (s *OrganizationService) ChangeName(ctx context.Context, actor *string, id string, in RenameInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.change(ctx, organizationKind, id, eventstore.CommandChangeName, actor, map[string]any{"name": in.Name}, eventOpts{})
}

type ChangeSlugInput struct {
	Slug string `json:"slug" validate:"required,max=64"`
}

func (s *OrganizationService) ChangeSlug(ctx context.Context, actor *string, id string, in ChangeSlugInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.change(ctx, organizationKind, id, eventstore.CommandChangeSlug, actor, map[string]any{"slug": in.Slug}, eventOpts{})
}

func (s *OrganizationService) Delete(ctx context.Context, actor *string, id string) ([]eventstore.Result, error) {
	return s.core.delete(ctx, organizationKind, id, actor)
}

func (s *OrganizationService) Restore(ctx context.Context, actor *string, id string) ([]eventstore.Result, error) {
	return s.core.restore(ctx, organizationKind, id, actor)
}
