package normalizer

import (
	"context"
	"fmt"
	"testing"

	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/repo"
	"github.com/richardliu001/identity-service/internal/repo/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
)

func TestNormalize_PersistsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()
	db := repotest.Open(t)
	store := eventstore.New(db, log)
	docs := repo.NewRepository(db, log)
	n := New(store, docs, log)

	_, err := store.Push(ctx, nil, model.EntityUser, []model.Event{
		{EntityID: "u1", Command: model.CommandCreate, Date: t0, Values: datatypes.JSONMap{"email": "a@x.com"}},
		{EntityID: "u1", Command: eventstore.CommandChangeEmail, Date: t0.Add(1e9), Values: datatypes.JSONMap{"email": "b@x.com"}},
		{EntityID: "u1", Command: model.CommandDelete, Date: t0.Add(2e9)},
	})
	require.NoError(t, err)

	require.NoError(t, n.Normalize(ctx, model.EntityUser, []string{"u1", "missing"}))
	first, err := docs.GetNormalized(ctx, model.EntityUser, "u1")
	require.NoError(t, err)
	assert.True(t, first.Deleted)
	assert.Equal(t, "b@x.com", first.String("email"))
	assert.Equal(t, []any{"a@x.com"}, first.Values["previousEmails"])
	assert.Len(t, first.History, 3)

	require.NoError(t, n.Normalize(ctx, model.EntityUser, []string{"u1"}))
	second, err := docs.GetNormalized(ctx, model.EntityUser, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Document(), second.Document())

	_, err = docs.GetNormalized(ctx, model.EntityUser, "missing")
	assert.Error(t, err)
}

func TestNormalize_UnknownType(t *testing.T) {
	n := New(nil, nil, zaptest.NewLogger(t).Sugar())
	assert.Error(t, n.Normalize(context.Background(), "robot", []string{"r1"}))
}

func TestNormalize_UndatedBatchFoldsInPushOrder(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()
	db := repotest.Open(t)
	store := eventstore.New(db, log)
	docs := repo.NewRepository(db, log)
	n := New(store, docs, log)

	ids := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("u%d", i)
		ids = append(ids, id)
		_, err := store.Push(ctx, nil, model.EntityUser, []model.Event{
			{EntityID: id, Command: model.CommandCreate, Values: datatypes.JSONMap{"email": "a@x.com"}},
			{EntityID: id, Command: eventstore.CommandChangeEmail, Values: datatypes.JSONMap{"email": "b@x.com"}},
			{EntityID: id, Command: eventstore.CommandChangeEmail, Values: datatypes.JSONMap{"email": "c@x.com"}},
			{EntityID: id, Command: model.CommandDelete},
		})
		require.NoError(t, err)
	}
	require.NoError(t, n.Normalize(ctx, model.EntityUser, ids))

	for _, id := range ids {
		doc, err := docs.GetNormalized(ctx, model.EntityUser, id)
		require.NoError(t, err)
		assert.True(t, doc.Deleted, id)
		assert.Equal(t, "c@x.com", doc.String("email"), id)
		assert.Equal(t, []any{"a@x.com", "b@x.com"}, doc.Values["previousEmails"], id)
	}
}
