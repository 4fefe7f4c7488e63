package materializer

import (
	"context"

	"github.com/richardliu001/identity-service/internal/model"
)

// Builder projects live normalized documents of one type into read views.
type Builder func(ctx context.Context, j joiner, docs []model.NormalizedDocument) ([]map[string]any, error)

// Builders holds the read-view projection of every entity type.
var Builders = map[string]Builder{
	model.EntityUser:         buildUsers,
	model.EntityOrganization: buildOrganizations,
	model.EntityApplication:  buildPlain,
	model.EntityWorkspace:    buildWorkspaces,
	model.EntityMember:       buildPlain,
	model.EntityManager:      buildPlain,
}

func buildPlain(_ context.Context, _ joiner, docs []model.NormalizedDocument) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, base(d))
	}
	return out, nil
}

// buildWorkspaces embeds the application, the organization and the members.
func buildWorkspaces(ctx context.Context, j joiner, docs []model.NormalizedDocument) ([]map[string]any, error) {
	var appIDs, orgIDs []string
	for _, d := range docs {
		appIDs = append(appIDs, d.String("application"))
		orgIDs = append(orgIDs, d.String("organization"))
	}
	apps, err := j.load(ctx, model.EntityApplication, appIDs)
	if err != nil {
		return nil, err
	}
	orgs, err := j.load(ctx, model.EntityOrganization, orgIDs)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		userIDs, err := j.related(ctx, model.EntityMember, "workspace", d.EntityID, "user")
		if err != nil {
			return nil, err
		}
		users, err := j.load(ctx, model.EntityUser, userIDs)
		if err != nil {
			return nil, err
		}
		m := base(d)
		m["application"] = edge(apps, d.String("application"), ref)
		m["organization"] = edge(orgs, d.String("organization"), ref)
		m["members"] = edges(users, userIDs, person)
		out = append(out, m)
	}
	return out, nil
}

// buildUsers embeds the workspaces a user belongs to, each with its
// application and organization, and the organizations the user manages.
func buildUsers(ctx context.Context, j joiner, docs []model.NormalizedDocument) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		wsIDs, err := j.related(ctx, model.EntityMember, "user", d.EntityID, "workspace")
		if err != nil {
			return nil, err
		}
		workspaces, err := j.load(ctx, model.EntityWorkspace, wsIDs)
		if err != nil {
			return nil, err
		}
		var appIDs, orgIDs []string
		for _, ws := range workspaces {
			appIDs = append(appIDs, ws.String("application"))
			orgIDs = append(orgIDs, ws.String("organization"))
		}
		managed, err := j.related(ctx, model.EntityManager, "user", d.EntityID, "organization")
		if err != nil {
			return nil, err
		}
		apps, err := j.load(ctx, model.EntityApplication, appIDs)
		if err != nil {
			return nil, err
		}
		orgs, err := j.load(ctx, model.EntityOrganization, append(orgIDs, managed...))
		if err != nil {
			return nil, err
		}

		m := base(d)
		m["workspaces"] = edges(workspaces, wsIDs, func(ws model.NormalizedDocument) map[string]any {
			r := ref(ws)
			r["application"] = edge(apps, ws.String("application"), ref)
			r["organization"] = edge(orgs, ws.String("organization"), ref)
			return r
		})
		m["organizations"] = edges(orgs, managed, ref)
		out = append(out, m)
	}
	return out, nil
}

// buildOrganizations embeds the managers.
func buildOrganizations(ctx context.Context, j joiner, docs []model.NormalizedDocument) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		userIDs, err := j.related(ctx, model.EntityManager, "organization", d.EntityID, "user")
		if err != nil {
			return nil, err
		}
		users, err := j.load(ctx, model.EntityUser, userIDs)
		if err != nil {
			return nil, err
		}
		m := base(d)
		m["managers"] = edges(users, userIDs, person)
		out = append(out, m)
	}
	return out, nil
}
