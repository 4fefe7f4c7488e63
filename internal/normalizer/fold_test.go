package normalizer

import (
	"math/rand"
	"testing"
	"time"

	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ev(id, command string, offset time.Duration, values map[string]any) model.Event {
	return model.Event{
		ID:         id,
		EntityType: model.EntityUser,
		EntityID:   "u1",
		Command:    command,
		Date:       t0.Add(offset),
		Values:     datatypes.JSONMap(values),
	}
}

func TestFoldAll_PreviousEmails(t *testing.T) {
	evts := []model.Event{
		ev("e1", model.CommandCreate, 0, map[string]any{"email": "a@x.com"}),
		ev("e2", eventstore.CommandChangeEmail, time.Second, map[string]any{"email": "b@x.com"}),
	}
	st := FoldAll(evts, UserReducer())

	assert.Equal(t, "b@x.com", st.Values["email"])
	assert.Equal(t, []string{"a@x.com"}, st.Values["previousEmails"])
	require.NotNil(t, st.Created)
	assert.Equal(t, t0, st.Created.Date)
	assert.Equal(t, 2, st.Modified.N)
	assert.Len(t, st.History, 2)
}

func TestFoldAll_EmailChangedBack(t *testing.T) {
	evts := []model.Event{
		ev("e1", model.CommandCreate, 0, map[string]any{"email": "a@x.com"}),
		ev("e2", eventstore.CommandChangeEmail, time.Second, map[string]any{"email": "b@x.com"}),
		ev("e3", eventstore.CommandChangeEmail, 2*time.Second, map[string]any{"email": "a@x.com"}),
	}
	st := FoldAll(evts, UserReducer())
	assert.Equal(t, []string{"b@x.com"}, st.Values["previousEmails"])
}

func TestFoldAll_DeleteRestore(t *testing.T) {
	evts := []model.Event{
		ev("e1", model.CommandCreate, 0, map[string]any{"email": "a@x.com"}),
		ev("e2", model.CommandDelete, time.Second, nil),
	}
	st := FoldAll(evts, UserReducer())
	assert.True(t, st.Deleted)
	assert.Equal(t, "a@x.com", st.Values["email"])

	evts = append(evts, ev("e3", model.CommandRestore, 2*time.Second, nil))
	st = FoldAll(evts, UserReducer())
	assert.False(t, st.Deleted)
	assert.Len(t, st.History, 3)
	assert.Equal(t, 3, st.Touched.N)
	assert.Equal(t, t0.Add(2*time.Second), st.Touched.Date)
	assert.Equal(t, []string{model.CommandCreate, model.CommandDelete, model.CommandRestore},
		[]string{st.History[0].Command, st.History[1].Command, st.History[2].Command})
}

func TestFoldAll_MagicLogin(t *testing.T) {
	actor := "u1"
	login := func(id string, offset time.Duration) model.Event {
		e := ev(id, eventstore.CommandMagicLogin, offset, nil)
		e.UserID = &actor
		e.OmitFromHistory = true
		e.OmitFromModified = true
		return e
	}
	evts := []model.Event{
		ev("e1", model.CommandCreate, 0, map[string]any{"email": "a@x.com"}),
		login("e2", time.Minute),
		login("e3", 2*time.Minute),
	}
	st := FoldAll(evts, UserReducer())

	assert.Equal(t, 2, st.Values["loginCount"])
	assert.Equal(t, t0.Add(2*time.Minute).Format(time.RFC3339Nano), st.Values["lastLoggedInAt"])
	assert.Len(t, st.History, 1)
	assert.Equal(t, 1, st.Modified.N)
	assert.Equal(t, t0, st.Modified.Date)
	assert.Equal(t, 3, st.Touched.N)
	assert.Equal(t, &actor, st.Touched.UserID)
}

func TestFold_DoesNotModifyPrevious(t *testing.T) {
	r := UserReducer()
	prev := Fold(State{}, ev("e1", model.CommandCreate, 0, map[string]any{"email": "a@x.com"}), r)
	_ = Fold(prev, ev("e2", eventstore.CommandChangeName, time.Second, map[string]any{"givenName": "Ada"}), r)

	assert.NotContains(t, prev.Values, "givenName")
	assert.Len(t, prev.History, 1)
}

func TestFoldAll_DeterministicAndOrderIndependent(t *testing.T) {
	evts := []model.Event{
		ev("e1", model.CommandCreate, 0, map[string]any{"email": "a@x.com", "givenName": "Ada"}),
		ev("e2", eventstore.CommandChangeName, time.Second, map[string]any{"familyName": "Lovelace"}),
		ev("e3", eventstore.CommandChangeEmail, 2*time.Second, map[string]any{"email": "b@x.com"}),
		ev("e4", model.CommandDelete, 3*time.Second, nil),
		ev("e5", model.CommandRestore, 3*time.Second, nil),
	}
	want := FoldAll(evts, UserReducer()).Document(model.EntityUser, "u1")

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]model.Event(nil), evts...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		model.SortEvents(shuffled)
		got := FoldAll(shuffled, UserReducer()).Document(model.EntityUser, "u1")
		assert.Equal(t, want.Document(), got.Document())
	}
}

func TestFoldAll_PlainEntity(t *testing.T) {
	evts := []model.Event{
		{ID: "e1", EntityID: "o1", Command: model.CommandCreate, Date: t0, Values: datatypes.JSONMap{"name": "Acme", "slug": "acme"}},
		{ID: "e2", EntityID: "o1", Command: eventstore.CommandChangeSlug, Date: t0.Add(time.Second), Values: datatypes.JSONMap{"slug": "acme-inc"}},
	}
	st := FoldAll(evts, ReducerFor(model.EntityOrganization))
	assert.Equal(t, map[string]any{"name": "Acme", "slug": "acme-inc"}, st.Values)
	assert.NotContains(t, st.Values, "previousEmails")
}

func TestFoldAll_Empty(t *testing.T) {
	st := FoldAll(nil, UserReducer())
	assert.Empty(t, st.Values)
	assert.Nil(t, st.Created)
}

func TestFoldAll_SecondCreateKeepsCreatedStamp(t *testing.T) {
	first, second := "alice", "bob"
	e1 := ev("e1", model.CommandCreate, 0, map[string]any{"email": "a@x.com"})
	e1.UserID = &first
	e2 := ev("e2", model.CommandCreate, time.Minute, map[string]any{"email": "b@x.com"})
	e2.UserID = &second

	st := FoldAll([]model.Event{e1, e2}, UserReducer())
	require.NotNil(t, st.Created)
	assert.Equal(t, t0, st.Created.Date)
	assert.Equal(t, &first, st.Created.UserID)
	assert.Equal(t, t0.Add(time.Minute), st.Modified.Date)
	assert.Equal(t, "b@x.com", st.Values["email"])
}
