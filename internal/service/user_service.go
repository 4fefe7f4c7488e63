package service

import (
	"context"

	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
)

var userKind = entityKind{Type: model.EntityUser, Unique: "email"}

// UserService handles user commands. Emails are unique across users.
type UserService struct {
	core *Core
}

func NewUserService(core *Core) *UserService { return &UserService{core: core} }

type CreateUserInput struct {
	ID         string `json:"id" validate:"omitempty,max=191"`
	Email      string `json:"email" validate:"required,email,max=254"`
	GivenName  string `json:"givenName" validate:"max=128"`
	FamilyName string `json:"familyName" validate:"max=128"`
}

func (in CreateUserInput) values() map[string]any {
	v := map[string]any{"email": in.Email}
	setIf(v, "givenName", in.GivenName)
	setIf(v, "familyName", in.FamilyName)
	return v
}

// Create registers a new user.
func (s *UserService) Create(ctx context.Context, actor *string, in CreateUserInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.create(ctx, userKind, in.ID, actor, in.values())
}

// CreateOrRestore registers a user, or restores the user already holding the
// id or email.
func (s *UserService) CreateOrRestore(ctx context.Context, actor *string, in CreateUserInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.createOrRestore(ctx, userKind, in.ID, actor, in.values())
}

type ChangeEmailInput struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// ChangeEmail moves the user to a new address, releasing the old one.
func (s *UserService) ChangeEmail(ctx context.Context, actor *string, id string, in ChangeEmailInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.change(ctx, userKind, id, eventstore.CommandChangeEmail, actor,
		map[string]any{"email": in.Email}, eventOpts{})
}

type ChangeNameInput struct {
	GivenName  string `json:"givenName" validate:"required_without=FamilyName,max=128"`
	FamilyName string `json:"familyName" validate:"max=128"`
}

// ChangeName updates the given and/or family name.
func (s *UserService) ChangeName(ctx context.Context, actor *string, id string, in ChangeNameInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	v := map[string]any{}
	setIf(v, "givenName", in.GivenName)
	setIf(v, "familyName", in.FamilyName)
	return s.core.change(ctx, userKind, id, eventstore.CommandChangeName, actor, v, eventOpts{})
}

// MagicLogin records a passwordless login. It neither shows in history nor
// counts as a modification.
func (s *UserService) MagicLogin(ctx context.Context, id string) ([]eventstore.Result, error) {
	actor := id
	return s.core.change(ctx, userKind, id, eventstore.CommandMagicLogin, &actor, nil,
		eventOpts{omitFromHistory: true, omitFromModified: true})
}

func (s *UserService) Delete(ctx context.Context, actor *string, id string) ([]eventstore.Result, error) {
	return s.core.delete(ctx, userKind, id, actor)
}

func (s *UserService) Restore(ctx context.Context, actor *string, id string) ([]eventstore.Result, error) {
	return s.core.restore(ctx, userKind, id, actor)
}
