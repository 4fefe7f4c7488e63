package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Entity types known to the system. The set is closed.
const (
	EntityUser         = "user"
	EntityOrganization = "organization"
	EntityApplication  = "application"
	EntityWorkspace    = "workspace"
	EntityMember       = "member"
	EntityManager      = "manager"
)

// EntityTypes lists every entity type in registration order.
var EntityTypes = []string{
	EntityUser,
	EntityOrganization,
	EntityApplication,
	EntityWorkspace,
	EntityMember,
	EntityManager,
}

// IsEntityType reports whether t is one of EntityTypes.
func IsEntityType(t string) bool {
	for _, et := range EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Lifecycle commands shared by every entity type.
const (
	CommandCreate  = "CREATE"
	CommandDelete  = "DELETE"
	CommandRestore = "RESTORE"
)

// IDPart is one named component of a composite entity id.
type IDPart struct {
	Key   string
	Value string
}

// CompositeID encodes parts as a JSON object whose keys keep the given order,
// so two ids built from the same parts are byte-equal.
func CompositeID(parts ...IDPart) string {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(p.Key)
		v, _ := json.Marshal(p.Value)
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.String()
}

// ParseCompositeID decodes an id built by CompositeID, preserving key order.
func ParseCompositeID(id string) ([]IDPart, error) {
	if !strings.HasPrefix(id, "{") {
		return nil, fmt.Errorf("entity id %q is not composite", id)
	}
	dec := json.NewDecoder(strings.NewReader(id))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var parts []IDPart
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		var v string
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("composite id %q: %w", id, err)
		}
		parts = append(parts, IDPart{Key: kt.(string), Value: v})
	}
	return parts, nil
}

// CompositePart returns the value of key inside a composite id, or "".
func CompositePart(id, key string) string {
	parts, err := ParseCompositeID(id)
	if err != nil {
		return ""
	}
	for _, p := range parts {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// MemberID is the composite id of a workspace membership.
func MemberID(user, workspace string) string {
	return CompositeID(IDPart{"user", user}, IDPart{"workspace", workspace})
}

// ManagerID is the composite id of an organization management role.
func ManagerID(user, organization string) string {
	return CompositeID(IDPart{"user", user}, IDPart{"organization", organization})
}
