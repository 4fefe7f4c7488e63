// Package materializer denormalizes normalized documents into read views and
// cascades recomputation along the dependency graph.
package materializer

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/repo"
	"go.uber.org/zap"
)

// Source is the storage the materializer reads and writes.
type Source interface {
	FindNormalized(ctx context.Context, entityType string, c repo.Criteria) ([]model.NormalizedDocument, error)
	NormalizedIDs(ctx context.Context, entityType string, c repo.Criteria) ([]string, error)
	SaveMaterialized(ctx context.Context, docs []model.MaterializedDocument) error
	DeleteMaterialized(ctx context.Context, entityType string, ids []string) error
}

// Materializer builds read views.
type Materializer struct {
	src      Source
	builders map[string]Builder
	graph    map[string][]Dependency
	log      *zap.SugaredLogger
}

// New returns a Materializer using the package Builders and Graph.
func New(src Source, logger *zap.SugaredLogger) *Materializer {
	return &Materializer{src: src, builders: Builders, graph: Graph, log: logger}
}

// Validate checks the dependency graph and that every entity type has a
// builder.
func (m *Materializer) Validate() error {
	if err := ValidateGraph(m.graph); err != nil {
		return err
	}
	for _, et := range model.EntityTypes {
		if m.builders[et] == nil {
			return fmt.Errorf("materializer: no builder for %s", et)
		}
	}
	return nil
}

// Materialize rebuilds the read views of the documents matching c and returns
// them. Matching deleted documents lose their read view.
func (m *Materializer) Materialize(ctx context.Context, entityType string, c repo.Criteria) ([]map[string]any, error) {
	views, deleted, err := m.Build(ctx, entityType, c)
	if err != nil {
		return nil, err
	}
	if err := m.src.DeleteMaterialized(ctx, entityType, deleted); err != nil {
		return nil, fmt.Errorf("drop deleted %s views: %w", entityType, err)
	}
	rows := make([]model.MaterializedDocument, 0, len(views))
	for _, v := range views {
		rows = append(rows, model.MaterializedDocument{
			EntityType: entityType,
			EntityID:   v["_id"].(string),
			Document:   v,
		})
	}
	if err := m.src.SaveMaterialized(ctx, rows); err != nil {
		return nil, fmt.Errorf("save %s views: %w", entityType, err)
	}
	return views, nil
}

// Build computes the read views of the live documents matching c without
// storing them, and lists the matching deleted ids.
func (m *Materializer) Build(ctx context.Context, entityType string, c repo.Criteria) (views []map[string]any, deleted []string, err error) {
	build, ok := m.builders[entityType]
	if !ok {
		return nil, nil, fmt.Errorf("materialize: unknown entity type %q", entityType)
	}
	c.ExcludeDeleted = false
	docs, err := m.src.FindNormalized(ctx, entityType, c)
	if err != nil {
		return nil, nil, fmt.Errorf("materialize %s: %w", entityType, err)
	}

	var live []model.NormalizedDocument
	for _, d := range docs {
		if d.Deleted {
			deleted = append(deleted, d.EntityID)
		} else {
			live = append(live, d)
		}
	}
	views, err = build(ctx, joiner{src: m.src}, live)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s views: %w", entityType, err)
	}
	return views, deleted, nil
}

// MaterializeEntities rebuilds the read views of ids and then of every view
// the dependency graph says embeds them. Failing fan-out lookups are logged
// and their branch skipped; failing dependent rebuilds are returned.
func (m *Materializer) MaterializeEntities(ctx context.Context, entityType string, ids []string) error {
	if _, err := m.Materialize(ctx, entityType, repo.ByIDs(ids...)); err != nil {
		return err
	}

	targets, order := m.fanOut(ctx, entityType, ids)
	var errs []error
	for _, t := range order {
		tids := uniq(targets[t])
		if len(tids) == 0 {
			continue
		}
		if _, err := m.Materialize(ctx, t, repo.ByIDs(tids...)); err != nil {
			m.log.Errorw("dependent materialization failed",
				"entityType", entityType, "target", t, "count", len(tids), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dependents resolves the dependency graph of entityType for ids and returns
// the target ids per type.
func (m *Materializer) Dependents(ctx context.Context, entityType string, ids []string) map[string][]string {
	targets, _ := m.fanOut(ctx, entityType, ids)
	for t, tids := range targets {
		targets[t] = uniq(tids)
	}
	return targets
}

func (m *Materializer) fanOut(ctx context.Context, entityType string, ids []string) (map[string][]string, []string) {
	resolved := make(map[string][]string)
	failed := make(map[string]bool)
	targets := make(map[string][]string)
	var order []string

	for _, level := range levels(m.graph[entityType]) {
		for _, dep := range level {
			in := ids
			if dep.Via != "" {
				if failed[dep.Via] {
					failed[dep.Name] = true
					continue
				}
				in = resolved[dep.Via]
			}
			if len(in) == 0 {
				continue
			}
			out, err := dep.Query(ctx, m.src, in)
			if err != nil {
				m.log.Warnw("dependency lookup failed",
					"entityType", entityType, "dependency", dep.Name, "error", err)
				failed[dep.Name] = true
				continue
			}
			resolved[dep.Name] = out
			if _, ok := targets[dep.Target]; !ok {
				order = append(order, dep.Target)
			}
			targets[dep.Target] = append(targets[dep.Target], out...)
		}
	}
	return targets, order
}
