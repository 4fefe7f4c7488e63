package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
)

// Request is a loosely typed command as received from a transport.
type Request struct {
	EntityID string         `json:"entityId"`
	UserID   *string        `json:"userId,omitempty"`
	Values   map[string]any `json:"values"`
}

// HandlerFunc runs one command.
type HandlerFunc func(ctx context.Context, req Request) ([]eventstore.Result, error)

// Key names a command of an entity type.
type Key struct {
	EntityType string
	Command    string
}

func (k Key) String() string { return k.EntityType + "." + k.Command }

// Commands every entity type must register.
var requiredCommands = []string{"create", "createOrRestore", "delete", "restore"}

// Services bundles the command handlers of every entity type.
type Services struct {
	Users         *UserService
	Organizations *OrganizationService
	Applications  *ApplicationService
	Workspaces    *WorkspaceService
	Members       *RoleService
	Managers      *RoleService
}

// NewServices builds every handler on core.
func NewServices(core *Core) *Services {
	return &Services{
		Users:         NewUserService(core),
		Organizations: NewOrganizationService(core),
		Applications:  NewApplicationService(core),
		Workspaces:    NewWorkspaceService(core),
		Members:       NewMemberService(core),
		Managers:      NewManagerService(core),
	}
}

// Registry dispatches (entity type, command) pairs to handlers.
type Registry struct {
	handlers map[Key]HandlerFunc
}

// NewRegistry registers every command of s and validates the result.
func NewRegistry(s *Services) (*Registry, error) {
	r := &Registry{handlers: make(map[Key]HandlerFunc)}

	u := s.Users
	r.register(model.EntityUser, "create", withInput(func(ctx context.Context, req Request, in CreateUserInput) ([]eventstore.Result, error) {
		in.ID = firstNonEmpty(req.EntityID, in.ID)
		return u.Create(ctx, req.UserID, in)
	}))
	r.register(model.EntityUser, "createOrRestore", withInput(func(ctx context.Context, req Request, in CreateUserInput) ([]eventstore.Result, error) {
		in.ID = firstNonEmpty(req.EntityID, in.ID)
		return u.CreateOrRestore(ctx, req.UserID, in)
	}))
	r.register(model.EntityUser, "changeEmail", withInput(func(ctx context.Context, req Request, in ChangeEmailInput) ([]eventstore.Result, error) {
		return u.ChangeEmail(ctx, req.UserID, req.EntityID, in)
	}))
	r.register(model.EntityUser, "changeName", withInput(func(ctx context.Context, req Request, in ChangeNameInput) ([]eventstore.Result, error) {
		return u.ChangeName(ctx, req.UserID, req.EntityID, in)
	}))
	r.register(model.EntityUser, "magicLogin", func(ctx context.Context, req Request) ([]eventstore.Result, error) {
		return u.MagicLogin(ctx, req.EntityID)
	})
	r.register(model.EntityUser, "delete", byID(u.Delete))
	r.register(model.EntityUser, "restore", byID(u.Restore))

	o := s.Organizations
	r.register(model.EntityOrganization, "create", withInput(func(ctx context.Context, req Request, in CreateOrganizationInput) ([]eventstore.Result, error) {
		in.ID = firstNonEmpty(req.EntityID, in.ID)
		return o.Create(ctx, req.UserID, in)
	}))
	r.register(model.EntityOrganization, "createOrRestore", withInput(func(ctx context.Context, req Request, in CreateOrganizationInput) ([]eventstore.Result, error) {
		in.ID = firstNonEmpty(req.EntityID, in.ID)
		return o.CreateOrRestore(ctx, req.UserID, in)
	}))
	r.register(model.EntityOrganization, "changeName", withInput(func(ctx context.Context, req Request, in RenameInput) ([]eventstore.Result, error) {
		return o.ChangeName(ctx, req.UserID, req.EntityID, in)
	}))
	r.register(model.EntityOrganization, "changeSlug", withInput(func(ctx context.Context, req Request, in ChangeSlugInput) ([]eventstore.Result, error) {
		return o.ChangeSlug(ctx, req.UserID, req.EntityID, in)
	}))
	r.register(model.EntityOrganization, "delete", byID(o.Delete))
	r.register(model.EntityOrganization, "restore", byID(o.Restore))

	a := s.Applications
	r.register(model.EntityApplication, "create", withInput(func(ctx context.Context, req Request, in CreateApplicationInput) ([]eventstore.Result, error) {
		in.ID = firstNonEmpty(req.EntityID, in.ID)
		return a.Create(ctx, req.UserID, in)
	}))
	r.register(model.EntityApplication, "createOrRestore", withInput(func(ctx context.Context, req Request, in CreateApplicationInput) ([]eventstore.Result, error) {
		in.ID = firstNonEmpty(req.EntityID, in.ID)
		return a.CreateOrRestore(ctx, req.UserID, in)
	}))
	r.register(model.EntityApplication, "changeName", withInput(func(ctx context.Context, req Request, in RenameInput) ([]eventstore.Result, error) {
		return a.ChangeName(ctx, req.UserID, req.EntityID, in)
	}))
	r.register(model.EntityApplication, "rotateKey", withInput(func(ctx context.Context, req Request, in RotateKeyInput) ([]eventstore.Result, error) {
		return a.RotateKey(ctx, req.UserID, req.EntityID, in)
	}))
	r.register(model.EntityApplication, "changeRedirectUris", withInput(func(ctx context.Context, req Request, in RedirectURIsInput) ([]eventstore.Result, error) {
		return a.ChangeRedirectURIs(ctx, req.UserID, req.EntityID, in)
	}))
	r.register(model.EntityApplication, "delete", byID(a.Delete))
	r.register(model.EntityApplication, "restore", byID(a.Restore))

	w := s.Workspaces
	r.register(model.EntityWorkspace, "create", withInput(func(ctx context.Context, req Request, in CreateWorkspaceInput) ([]eventstore.Result, error) {
		in.ID = firstNonEmpty(req.EntityID, in.ID)
		return w.Create(ctx, req.UserID, in)
	}))
	r.register(model.EntityWorkspace, "createOrRestore", withInput(func(ctx context.Context, req Request, in CreateWorkspaceInput) ([]eventstore.Result, error) {
		in.ID = firstNonEmpty(req.EntityID, in.ID)
		return w.CreateOrRestore(ctx, req.UserID, in)
	}))
	r.register(model.EntityWorkspace, "changeName", withInput(func(ctx context.Context, req Request, in RenameInput) ([]eventstore.Result, error) {
		return w.ChangeName(ctx, req.UserID, req.EntityID, in)
	}))
	r.register(model.EntityWorkspace, "changeSlug", withInput(func(ctx context.Context, req Request, in ChangeSlugInput) ([]eventstore.Result, error) {
		return w.ChangeSlug(ctx, req.UserID, req.EntityID, in)
	}))
	r.register(model.EntityWorkspace, "delete", byID(w.Delete))
	r.register(model.EntityWorkspace, "restore", byID(w.Restore))

	r.registerRole(model.EntityMember, model.EntityWorkspace, s.Members)
	r.registerRole(model.EntityManager, model.EntityOrganization, s.Managers)

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) registerRole(entityType, group string, s *RoleService) {
	input := func(req Request) RoleInput {
		in := RoleInput{}
		in.User, _ = req.Values["user"].(string)
		in.Group, _ = req.Values[group].(string)
		if in.User == "" && in.Group == "" && req.EntityID != "" {
			in.User = model.CompositePart(req.EntityID, "user")
			in.Group = model.CompositePart(req.EntityID, group)
		}
		return in
	}
	add := func(ctx context.Context, req Request) ([]eventstore.Result, error) {
		return s.Add(ctx, req.UserID, input(req))
	}
	r.register(entityType, "create", add)
	r.register(entityType, "createOrRestore", add)
	r.register(entityType, "restore", add)
	r.register(entityType, "delete", func(ctx context.Context, req Request) ([]eventstore.Result, error) {
		return s.Remove(ctx, req.UserID, input(req))
	})
}

func (r *Registry) register(entityType, command string, h HandlerFunc) {
	r.handlers[Key{EntityType: entityType, Command: command}] = h
}

// Validate checks the registry against the fixed entity type set: no unknown
// types, and every type handles the lifecycle commands.
func (r *Registry) Validate() error {
	for k := range r.handlers {
		if !model.IsEntityType(k.EntityType) {
			return fmt.Errorf("registry: %s registered for unknown entity type", k)
		}
	}
	for _, et := range model.EntityTypes {
		for _, c := range requiredCommands {
			if _, ok := r.handlers[Key{EntityType: et, Command: c}]; !ok {
				return fmt.Errorf("registry: %s has no %q handler", et, c)
			}
		}
	}
	return nil
}

// Dispatch runs the handler registered for (entityType, command).
func (r *Registry) Dispatch(ctx context.Context, entityType, command string, req Request) ([]eventstore.Result, error) {
	h, ok := r.handlers[Key{EntityType: entityType, Command: command}]
	if !ok {
		return nil, apperr.Invalid("command", "unknown command %s.%s", entityType, command)
	}
	return h(ctx, req)
}

// Keys lists the registered commands in sorted order.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func withInput[T any](fn func(context.Context, Request, T) ([]eventstore.Result, error)) HandlerFunc {
	return func(ctx context.Context, req Request) ([]eventstore.Result, error) {
		var in T
		if err := decode(req.Values, &in); err != nil {
			return nil, err
		}
		return fn(ctx, req, in)
	}
}

func byID(fn func(context.Context, *string, string) ([]eventstore.Result, error)) HandlerFunc {
	return func(ctx context.Context, req Request) ([]eventstore.Result, error) {
		return fn(ctx, req.UserID, req.EntityID)
	}
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
