package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeID(t *testing.T) {
	id := MemberID("u1", `w"1`)
	assert.Equal(t, `{"user":"u1","workspace":"w\"1"}`, id)

	parts, err := ParseCompositeID(id)
	require.NoError(t, err)
	assert.Equal(t, []IDPart{{"user", "u1"}, {"workspace", `w"1`}}, parts)

	assert.Equal(t, "u1", CompositePart(ManagerID("u1", "o1"), "user"))
	assert.Equal(t, "o1", CompositePart(ManagerID("u1", "o1"), "organization"))
	assert.Empty(t, CompositePart(ManagerID("u1", "o1"), "workspace"))
	assert.Empty(t, CompositePart("plain-id", "user"))

	_, err = ParseCompositeID(`{"user":1}`)
	assert.Error(t, err)
}

func TestSortEvents(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	evts := []Event{
		{ID: "b", EntityID: "x", Date: at},
		{ID: "c", EntityID: "a", Date: at.Add(time.Second)},
		{ID: "a", EntityID: "x", Date: at},
		{ID: "d", EntityID: "a", Date: at},
	}
	SortEvents(evts)
	got := make([]string, 0, len(evts))
	for _, e := range evts {
		got = append(got, e.ID)
	}
	assert.Equal(t, []string{"d", "c", "a", "b"}, got)
}

func TestNormalizedDocument_Document(t *testing.T) {
	d := NormalizedDocument{EntityType: EntityUser, EntityID: "u1", Values: map[string]any{"email": "a@x.com"}}
	doc := d.Document()
	assert.Equal(t, "u1", doc["_id"])
	assert.Equal(t, false, doc["_deleted"])
	assert.Equal(t, []HistoryEntry{}, doc["_history"])
	assert.Equal(t, "a@x.com", doc["email"])
	assert.Equal(t, "a@x.com", d.String("email"))
	assert.Empty(t, d.String("missing"))
}
