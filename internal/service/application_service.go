package service

import (
	"context"

	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
)

var applicationKind = entityKind{Type: model.EntityApplication, Unique: "key"}

// ApplicationService handles application commands. Client keys are unique.
type ApplicationService struct {
	core *Core
}

func NewApplicationService(core *Core) *ApplicationService {
	return &ApplicationService{core: core}
}

type CreateApplicationInput struct {
	ID           string   `json:"id" validate:"omitempty,max=191"`
	Name         string   `json:"name" validate:"required,max=128"`
	Key          string   `json:"key" validate:"required,min=8,max=128"`
	RedirectURIs []string `json:"redirectUris" validate:"omitempty,dive,url"`
}

func (in CreateApplicationInput) values() map[string]any {
	v := map[string]any{"name": in.Name, "key": in.Key}
	if len(in.RedirectURIs) > 0 {
		v["redirectUris"] = uris(in.RedirectURIs)
	}
	return v
}

func (s *ApplicationService) Create(ctx context.Context, actor *string, in CreateApplicationInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.create(ctx, applicationKind, in.ID, actor, in.values())
}

func (s *ApplicationService) CreateOrRestore(ctx context.Context, actor *string, in CreateApplicationInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.createOrRestore(ctx, applicationKind, in.ID, actor, in.values())
}

func (s *ApplicationService) ChangeName(ctx context.Context, actor *string, id string, in RenameInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.change(ctx, applicationKind, id, eventstore.CommandChangeName, actor, map[string]any{"name": in.Name}, eventOpts{})
}

type RotateKeyInput struct {
	Key string `json:"key" validate:"required,min=8,max=128"`
}

// RotateKey replaces the client key, releasing the old one.
func (s *ApplicationService) RotateKey(ctx context.Context, actor *string, id string, in RotateKeyInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.change(ctx, applicationKind, id, eventstore.CommandRotateKey, actor, map[string]any{"key": in.Key}, eventOpts{})
}

type RedirectURIsInput struct {
	RedirectURIs []string `json:"redirectUris" validate:"dive,url"`
}

func (s *ApplicationService) ChangeRedirectURIs(ctx context.Context, actor *string, id string, in RedirectURIsInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.change(ctx, applicationKind, id, eventstore.CommandChangeRedirectURIs, actor,
		map[string]any{"redirectUris": uris(in.RedirectURIs)}, eventOpts{})
}

func (s *ApplicationService) Delete(ctx context.Context, actor *string, id string) ([]eventstore.Result, error) {
	return s.core.delete(ctx, applicationKind, id, actor)
}

func (s *ApplicationService) Restore(ctx context.Context, actor *string, id string) ([]eventstore.Result, error) {
	return s.core.restore(ctx, applicationKind, id, actor)
}

func uris(in []string) []any {
	out := make([]any, 0, len(in))
	for _, u := range in {
		out = append(out, u)
	}
	return out
}
