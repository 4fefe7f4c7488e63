package main

import (
	"context"
	"fmt"
	"time"

	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/repo"
	"github.com/spf13/cobra"
)

type output struct {
	Command    string `json:"command"`
	DurationMS int64  `json:"duration_ms"`
	Result     any    `json:"result"`
}

type typeCounts struct {
	Normalized   int `json:"normalized"`
	Materialized int `json:"materialized"`
}

func newRebuildCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild [entity-type...]",
		Short: "Re-normalize and re-materialize every entity of the given types from the event log",
		Long: "Folds every event stream of the given entity types (all types when none are given) " +
			"into normalized documents, then rebuilds all read views.",
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := entityTypes(args)
			if err != nil {
				return err
			}
			a, err := open()
			if err != nil {
				return err
			}
			defer a.close()

			start := time.Now()
			res, err := a.rebuild(cmd.Context(), types)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), output{Command: "rebuild", DurationMS: time.Since(start).Milliseconds(), Result: res})
		},
	}
}

func newNormalizeCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <entity-type> <id>...",
		Short: "Refold the event streams of the given entities",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := entityTypes(args[:1]); err != nil {
				return err
			}
			a, err := open()
			if err != nil {
				return err
			}
			defer a.close()

			start := time.Now()
			if err := a.norm.Normalize(cmd.Context(), args[0], args[1:]); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), output{Command: "normalize", DurationMS: time.Since(start).Milliseconds(), Result: args[1:]})
		},
	}
}

func newMaterializeCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "materialize <entity-type> <id>...",
		Short: "Rebuild the read views of the given entities and their dependents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := entityTypes(args[:1]); err != nil {
				return err
			}
			a, err := open()
			if err != nil {
				return err
			}
			defer a.close()

			start := time.Now()
			deps := a.mat.Dependents(cmd.Context(), args[0], args[1:])
			if err := a.mat.MaterializeEntities(cmd.Context(), args[0], args[1:]); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), output{Command: "materialize", DurationMS: time.Since(start).Milliseconds(), Result: deps})
		},
	}
}

// rebuild normalizes every stream of types, then rebuilds the read views of
// every entity type, since views embed documents of other types.
func (a *app) rebuild(ctx context.Context, types []string) (map[string]typeCounts, error) {
	res := make(map[string]typeCounts, len(model.EntityTypes))
	for _, t := range types {
		ids, err := a.store.EntityIDs(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("list %s streams: %w", t, err)
		}
		if err := a.norm.Normalize(ctx, t, ids); err != nil {
			return nil, err
		}
		res[t] = typeCounts{Normalized: len(ids)}
		a.log.Infow("normalized", "entityType", t, "count", len(ids))
	}
	for _, t := range model.EntityTypes {
		views, err := a.mat.Materialize(ctx, t, repo.Criteria{})
		if err != nil {
			return nil, err
		}
		c := res[t]
		c.Materialized = len(views)
		res[t] = c
		a.log.Infow("materialized", "entityType", t, "count", len(views))
	}
	return res, nil
}

func entityTypes(args []string) ([]string, error) {
	if len(args) == 0 {
		return model.EntityTypes, nil
	}
	for _, t := range args {
		if !model.IsEntityType(t) {
			return nil, fmt.Errorf("unknown entity type %q", t)
		}
	}
	return args, nil
}
