package normalizer

import (
	"time"

	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
)

// Reducers holds the fold customizations per entity type. Types without an
// entry fold event values verbatim.
var Reducers = map[string]Reducer{
	model.EntityUser: UserReducer(),
}

// ReducerFor returns the reducer of entityType.
func ReducerFor(entityType string) Reducer {
	return Reducers[entityType]
}

// UserReducer counts magic logins and tracks the addresses a user has moved
// away from in previousEmails.
func UserReducer() Reducer {
	return Reducer{
		Commands: map[string]CommandReducer{
			eventstore.CommandMagicLogin: func(prev State, ev model.Event) map[string]any {
				return map[string]any{
					"loginCount":     toInt(prev.Values["loginCount"]) + 1,
					"lastLoggedInAt": ev.Date.UTC().Format(time.RFC3339Nano),
				}
			},
		},
		Merge: []MergeStage{
			func(_, merged map[string]any, _ model.Event) map[string]any {
				emails := toStrings(merged["previousEmails"])
				if email, ok := merged["email"].(string); ok && email != "" {
					emails = appendUnique(emails, email)
				}
				if emails != nil {
					merged["previousEmails"] = emails
				}
				return merged
			},
		},
		Finish: []FinishStage{
			func(values map[string]any) map[string]any {
				if _, ok := values["previousEmails"]; !ok {
					return values
				}
				current, _ := values["email"].(string)
				kept := []string{}
				for _, e := range toStrings(values["previousEmails"]) {
					if e != current {
						kept = append(kept, e)
					}
				}
				values["previousEmails"] = kept
				return values
			},
		},
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, e := range list {
		if e == s {
			return list
		}
	}
	return append(list, s)
}
