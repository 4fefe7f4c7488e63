package service

import (
	"context"

	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
)

// RoleService handles a many-to-many join between users and a group entity:
// workspace membership or organization management. The join id is the
// composite {user, group}.
type RoleService struct {
	core  *Core
	kind  entityKind
	group string
	id    func(user, group string) string
}

// NewMemberService joins users to workspaces.
func NewMemberService(core *Core) *RoleService {
	return newRoleService(core, model.EntityMember, model.EntityWorkspace, model.MemberID)
}

// NewManagerService grants users the management role on organizations.
func NewManagerService(core *Core) *RoleService {
	return newRoleService(core, model.EntityManager, model.EntityOrganization, model.ManagerID)
}

func newRoleService(core *Core, entityType, group string, id func(string, string) string) *RoleService {
	return &RoleService{
		core: core,
		kind: entityKind{
			Type: entityType,
			Refs: []ref{{Field: "user", Type: model.EntityUser}, {Field: group, Type: group}},
		},
		group: group,
		id:    id,
	}
}

type RoleInput struct {
	User  string `json:"user" validate:"required"`
	Group string `json:"group" validate:"required"`
}

// ID returns the join id for in.
func (s *RoleService) ID(in RoleInput) string { return s.id(in.User, in.Group) }

// Add grants the role, restoring a previously removed grant.
func (s *RoleService) Add(ctx context.Context, actor *string, in RoleInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	values := map[string]any{"user": in.User, s.group: in.Group}
	return s.core.createOrRestore(ctx, s.kind, s.ID(in), actor, values)
}

// Remove revokes the role.
func (s *RoleService) Remove(ctx context.Context, actor *string, in RoleInput) ([]eventstore.Result, error) {
	if err := s.core.check(in); err != nil {
		return nil, err
	}
	return s.core.delete(ctx, s.kind, s.ID(in), actor)
}
