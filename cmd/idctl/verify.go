package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/repo"
	"github.com/spf13/cobra"
	"github.com/wI2L/jsondiff"
)

// Drift states of a stored read view.
const (
	driftMissing  = "missing"
	driftStale    = "stale"
	driftOrphaned = "orphaned"
)

type drift struct {
	EntityID string         `json:"entityId"`
	Status   string         `json:"status"`
	Patch    jsondiff.Patch `json:"patch,omitempty"`
}

func newVerifyCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <entity-type> [id...]",
		Short: "Compare stored read views with freshly built ones without writing",
		Long: "Rebuilds the read views of the given entities (all entities of the type when no id is given) " +
			"in memory and reports views that are missing, stale or left behind by deleted entities. " +
			"Stale views carry the JSON patch that would bring them up to date.",
		Args: cobra.MinimumNArgs(1),
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
			drifts, err := a.verify(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), output{Command: "verify", DurationMS: time.Since(start).Milliseconds(), Result: drifts}); err != nil {
				return err
			}
			if len(drifts) > 0 {
				return fmt.Errorf("%d %s view(s) out of date", len(drifts), args[0])
			}
			return nil
		},
	}
}

func (a *app) verify(ctx context.Context, entityType string, ids []string) ([]drift, error) {
	c := repo.Criteria{}
	if len(ids) > 0 {
		c = repo.ByIDs(ids...)
	}
	views, deleted, err := a.mat.Build(ctx, entityType, c)
	if err != nil {
		return nil, err
	}

	drifts := []drift{}
	for _, v := range views {
		id, _ := v["_id"].(string)
		stored, err := a.docs.GetMaterialized(ctx, entityType, id)
		if errors.Is(err, apperr.ErrNotFound) {
			drifts = append(drifts, drift{EntityID: id, Status: driftMissing})
			continue
		}
		if err != nil {
			return nil, err
		}
		patch, err := jsondiff.Compare(map[string]any(stored.Document), v)
		if err != nil {
			return nil, fmt.Errorf("compare %s %s: %w", entityType, id, err)
		}
		if len(patch) > 0 {
			drifts = append(drifts, drift{EntityID: id, Status: driftStale, Patch: patch})
		}
	}
	for _, id := range deleted {
		_, err := a.docs.GetMaterialized(ctx, entityType, id)
		if err == nil {
			drifts = append(drifts, drift{EntityID: id, Status: driftOrphaned})
			continue
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	return drifts, nil
}
