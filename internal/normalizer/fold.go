// Package normalizer folds entity event streams into current-state documents.
package normalizer

import (
	"github.com/richardliu001/identity-service/internal/model"
	"gorm.io/datatypes"
)

// State is the fold accumulator.
type State struct {
	Deleted  bool
	Created  *model.Stamp
	Modified *model.Stamp
	Touched  *model.Stamp
	History  []model.HistoryEntry
	Values   map[string]any
}

// CommandReducer replaces an event's values with values derived from the
// previous state. It returns nil to fall back to the event's values.
type CommandReducer func(prev State, ev model.Event) map[string]any

// MergeStage post-processes merged values after each event.
type MergeStage func(prev, merged map[string]any, ev model.Event) map[string]any

// FinishStage post-processes values once after the last event.
type FinishStage func(values map[string]any) map[string]any

// Reducer customizes the fold for one entity type.
type Reducer struct {
	Commands map[string]CommandReducer
	Merge    []MergeStage
	Finish   []FinishStage
}

// Fold applies ev to prev and returns the next state. prev is not modified.
func Fold(prev State, ev model.Event, r Reducer) State {
	next := State{
		Deleted:  prev.Deleted,
		Created:  prev.Created,
		Modified: prev.Modified,
		History:  prev.History,
	}
	switch ev.Command {
	case model.CommandDelete:
		next.Deleted = true
	case model.CommandRestore:
		next.Deleted = false
	case model.CommandCreate:
		if next.Created == nil {
			next.Created = &model.Stamp{Date: ev.Date, UserID: ev.UserID}
		}
	}

	if !ev.OmitFromModified {
		next.Modified = &model.Stamp{Date: ev.Date, UserID: ev.UserID, N: count(prev.Modified) + 1}
	}
	next.Touched = &model.Stamp{Date: ev.Date, UserID: ev.UserID, N: count(prev.Touched) + 1}

	if !ev.OmitFromHistory {
		next.History = append(append([]model.HistoryEntry(nil), prev.History...), historyEntry(ev))
	}

	var delta map[string]any
	if ev.Command != model.CommandDelete {
		if cr := r.Commands[ev.Command]; cr != nil {
			delta = cr(prev, ev)
		}
		if delta == nil {
			delta = ev.Values
		}
	}
	merged := merge(prev.Values, delta)
	for _, stage := range r.Merge {
		merged = stage(prev.Values, merged, ev)
	}
	next.Values = merged
	return next
}

// FoldAll folds evts, which must already be sorted, from the empty state and
// applies the finish stages.
func FoldAll(evts []model.Event, r Reducer) State {
	var st State
	for _, ev := range evts {
		st = Fold(st, ev, r)
	}
	values := st.Values
	if values == nil {
		values = map[string]any{}
	}
	for _, stage := range r.Finish {
		values = stage(values)
	}
	st.Values = values
	return st
}

// Document converts a folded state into the stored document.
func (st State) Document(entityType, entityID string) *model.NormalizedDocument {
	doc := &model.NormalizedDocument{
		EntityType: entityType,
		EntityID:   entityID,
		Deleted:    st.Deleted,
		History:    st.History,
		Values:     st.Values,
		Meta:       datatypes.NewJSONType(model.Meta{Created: st.Created, Modified: st.Modified, Touched: st.Touched}),
	}
	return doc
}

func count(s *model.Stamp) int {
	if s == nil {
		return 0
	}
	return s.N
}

func merge(prev, delta map[string]any) map[string]any {
	out := make(map[string]any, len(prev)+len(delta))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

func historyEntry(ev model.Event) model.HistoryEntry {
	values := map[string]any(ev.Values)
	if values == nil {
		values = map[string]any{}
	}
	return model.HistoryEntry{
		ID:      ev.ID,
		Command: ev.Command,
		Date:    ev.Date,
		UserID:  ev.UserID,
		Values:  values,
	}
}
