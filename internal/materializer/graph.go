package materializer

import (
	"context"
	"fmt"

	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/repo"
)

// Query resolves the ids of a dependency target from source ids.
type Query func(ctx context.Context, src Source, ids []string) ([]string, error)

// Dependency is one edge of the materialization graph: when its source type
// is materialized, Target must be too. Via names an earlier dependency of the
// same source whose resolved ids feed Query; empty Via feeds the source ids.
type Dependency struct {
	Name   string
	Target string
	Via    string
	Query  Query
}

// Graph lists, per entity type, the read views embedding it.
var Graph = map[string][]Dependency{
	model.EntityApplication: {
		{Name: "workspaces", Target: model.EntityWorkspace, Query: referencing(model.EntityWorkspace, "application")},
		{Name: "members", Target: model.EntityUser, Via: "workspaces", Query: joined(model.EntityMember, "workspace", "user")},
	},
	model.EntityOrganization: {
		{Name: "workspaces", Target: model.EntityWorkspace, Query: referencing(model.EntityWorkspace, "organization")},
		{Name: "members", Target: model.EntityUser, Via: "workspaces", Query: joined(model.EntityMember, "workspace", "user")},
		{Name: "managers", Target: model.EntityUser, Query: joined(model.EntityManager, "organization", "user")},
	},
	model.EntityUser: {
		{Name: "managed", Target: model.EntityOrganization, Query: joined(model.EntityManager, "user", "organization")},
		{Name: "workspaces", Target: model.EntityWorkspace, Query: joined(model.EntityMember, "user", "workspace")},
	},
	model.EntityWorkspace: {
		{Name: "members", Target: model.EntityUser, Query: joined(model.EntityMember, "workspace", "user")},
	},
	model.EntityMember: {
		{Name: "user", Target: model.EntityUser, Query: idPart("user")},
		{Name: "workspace", Target: model.EntityWorkspace, Query: idPart("workspace")},
	},
	model.EntityManager: {
		{Name: "user", Target: model.EntityUser, Query: idPart("user")},
		{Name: "organization", Target: model.EntityOrganization, Query: idPart("organization")},
	},
}

// ValidateGraph checks that every dependency targets a known type and that
// every Via names an earlier dependency of the same source.
func ValidateGraph(g map[string][]Dependency) error {
	for source, deps := range g {
		if !model.IsEntityType(source) {
			return fmt.Errorf("graph: unknown source type %q", source)
		}
		seen := map[string]bool{}
		for _, d := range deps {
			if !model.IsEntityType(d.Target) {
				return fmt.Errorf("graph: %s.%s targets unknown type %q", source, d.Name, d.Target)
			}
			if d.Query == nil {
				return fmt.Errorf("graph: %s.%s has no query", source, d.Name)
			}
			if d.Via != "" && !seen[d.Via] {
				return fmt.Errorf("graph: %s.%s reads from %q which is not an earlier dependency", source, d.Name, d.Via)
			}
			if seen[d.Name] {
				return fmt.Errorf("graph: %s.%s declared twice", source, d.Name)
			}
			seen[d.Name] = true
		}
	}
	return nil
}

// levels orders deps breadth-first: root dependencies first, then those
// reading from them, and so on. Table order is kept within a level.
func levels(deps []Dependency) [][]Dependency {
	depth := make(map[string]int, len(deps))
	var out [][]Dependency
	for _, d := range deps {
		n := 0
		if d.Via != "" {
			n = depth[d.Via] + 1
		}
		depth[d.Name] = n
		for len(out) <= n {
			out = append(out, nil)
		}
		out[n] = append(out[n], d)
	}
	return out
}

// referencing finds live documents of target whose field holds one of ids.
func referencing(target, field string) Query {
	return func(ctx context.Context, src Source, ids []string) ([]string, error) {
		var out []string
		for _, id := range ids {
			found, err := src.NormalizedIDs(ctx, target, repo.Criteria{
				Fields:         map[string]string{field: id},
				ExcludeDeleted: true,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		}
		return uniq(out), nil
	}
}

// joined walks a join table: for live joinType documents whose matchField
// holds one of ids, it returns their outField values.
func joined(joinType, matchField, outField string) Query {
	return func(ctx context.Context, src Source, ids []string) ([]string, error) {
		j := joiner{src: src}
		var out []string
		for _, id := range ids {
			found, err := j.related(ctx, joinType, matchField, id, outField)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		}
		return uniq(out), nil
	}
}

// idPart reads one component of the composite ids of a join entity. It holds
// for deleted join documents too, so removing a membership refreshes both
// sides.
func idPart(key string) Query {
	return func(_ context.Context, _ Source, ids []string) ([]string, error) {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, model.CompositePart(id, key))
		}
		return uniq(out), nil
	}
}
