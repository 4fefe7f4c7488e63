package materializer

import (
	"context"
	"sort"

	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/repo"
)

// joiner loads related normalized documents for builders. Deleted documents
// are never joined, so an edge to one degrades to nil like a dangling id.
type joiner struct {
	src Source
}

// load returns the live documents of entityType among ids, keyed by id.
func (j joiner) load(ctx context.Context, entityType string, ids []string) (map[string]model.NormalizedDocument, error) {
	ids = uniq(ids)
	out := make(map[string]model.NormalizedDocument, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	docs, err := j.src.FindNormalized(ctx, entityType, repo.Criteria{IDs: ids, ExcludeDeleted: true})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.EntityID] = d
	}
	return out, nil
}

// related returns, for the live join documents of joinType whose matchField
// equals id, the value of outField.
func (j joiner) related(ctx context.Context, joinType, matchField, id, outField string) ([]string, error) {
	docs, err := j.src.FindNormalized(ctx, joinType, repo.Criteria{
		Fields:         map[string]string{matchField: id},
		ExcludeDeleted: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if v := d.String(outField); v != "" {
			out = append(out, v)
		}
	}
	return uniq(out), nil
}

// base projects the fields every read view carries.
func base(d model.NormalizedDocument) map[string]any {
	out := make(map[string]any, len(d.Values)+2)
	for k, v := range d.Values {
		out[k] = v
	}
	out["_id"] = d.EntityID
	out["_meta"] = d.Meta.Data()
	return out
}

// ref is the short edge shape used for organizations, applications and
// workspaces.
func ref(d model.NormalizedDocument) map[string]any {
	out := map[string]any{"_id": d.EntityID, "name": d.Values["name"]}
	if slug, ok := d.Values["slug"]; ok {
		out["slug"] = slug
	}
	return out
}

// person is the edge shape used for users.
func person(d model.NormalizedDocument) map[string]any {
	return map[string]any{
		"_id":        d.EntityID,
		"email":      d.Values["email"],
		"givenName":  d.Values["givenName"],
		"familyName": d.Values["familyName"],
	}
}

// edge returns the ref of id, or nil when it is dangling.
func edge(docs map[string]model.NormalizedDocument, id string, shape func(model.NormalizedDocument) map[string]any) any {
	d, ok := docs[id]
	if !ok {
		return nil
	}
	return shape(d)
}

// edges returns the shapes of ids present in docs, sorted by id.
func edges(docs map[string]model.NormalizedDocument, ids []string, shape func(model.NormalizedDocument) map[string]any) []any {
	ids = uniq(ids)
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if d, ok := docs[id]; ok {
			out = append(out, shape(d))
		}
	}
	return out
}

// uniq returns the sorted distinct non-empty values of ids.
func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
