package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/repo"
	"github.com/richardliu001/identity-service/internal/repo/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
)

func newRepo(t *testing.T) *repo.Repository {
	t.Helper()
	return repo.NewRepository(repotest.Open(t), zaptest.NewLogger(t).Sugar())
}

func TestFindNormalized_Criteria(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	for _, d := range []model.NormalizedDocument{
		{EntityType: model.EntityWorkspace, EntityID: "w2", Values: datatypes.JSONMap{"organization": "o1"}},
		{EntityType: model.EntityWorkspace, EntityID: "w1", Values: datatypes.JSONMap{"organization": "o1"}},
		{EntityType: model.EntityWorkspace, EntityID: "w3", Values: datatypes.JSONMap{"organization": "o2"}},
		{EntityType: model.EntityWorkspace, EntityID: "w4", Deleted: true, Values: datatypes.JSONMap{"organization": "o1"}},
	} {
		d := d
		require.NoError(t, r.SaveNormalized(ctx, &d))
	}

	ids, err := r.NormalizedIDs(ctx, model.EntityWorkspace, repo.Criteria{
		Fields:         map[string]string{"organization": "o1"},
		ExcludeDeleted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, ids)

	ids, err = r.NormalizedIDs(ctx, model.EntityWorkspace, repo.Criteria{Fields: map[string]string{"organization": "o1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2", "w4"}, ids)

	docs, err := r.FindNormalized(ctx, model.EntityWorkspace, repo.ByIDs("w3", "w9"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "o2", docs[0].String("organization"))

	docs, err = r.FindNormalized(ctx, model.EntityWorkspace, repo.Criteria{IDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = r.FindNormalized(ctx, model.EntityWorkspace, repo.Criteria{})
	require.NoError(t, err)
	assert.Len(t, docs, 4)
}

func TestSaveNormalized_ReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	doc := &model.NormalizedDocument{EntityType: model.EntityUser, EntityID: "u1", Deleted: true, Values: datatypes.JSONMap{"email": "a@x.com"}}
	require.NoError(t, r.SaveNormalized(ctx, doc))

	doc = &model.NormalizedDocument{EntityType: model.EntityUser, EntityID: "u1", Values: datatypes.JSONMap{"email": "b@x.com"}}
	require.NoError(t, r.SaveNormalized(ctx, doc))

	got, err := r.GetNormalized(ctx, model.EntityUser, "u1")
	require.NoError(t, err)
	assert.False(t, got.Deleted)
	assert.Equal(t, "b@x.com", got.String("email"))
}

func TestEventsAfterAndResumeToken(t *testing.T) {
	ctx := context.Background()
	db := repotest.Open(t)
	r := repo.NewRepository(db, zaptest.NewLogger(t).Sugar())
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, db.Create(&model.Event{
			ID: id, EntityType: model.EntityUser, EntityID: "u1", Command: model.CommandDelete,
			Date: at.Add(time.Duration(i) * time.Second), Values: datatypes.JSONMap{},
		}).Error)
	}

	tok, err := r.LoadResumeToken(ctx, "events")
	require.NoError(t, err)
	assert.Nil(t, tok)

	evts, err := r.EventsAfter(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "e1", evts[0].ID)
	assert.Less(t, evts[0].Seq, evts[1].Seq)

	require.NoError(t, r.SaveResumeToken(ctx, &model.ResumeToken{ID: "events", Seq: evts[1].Seq, Event: evts[1].ID, Date: evts[1].Date}))
	require.NoError(t, r.SaveResumeToken(ctx, &model.ResumeToken{ID: "events", Seq: evts[1].Seq, Event: evts[1].ID, Date: evts[1].Date}))
	tok, err = r.LoadResumeToken(ctx, "events")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "e2", tok.Event)

	rest, err := r.EventsAfter(ctx, tok.Seq, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "e3", rest[0].ID)
}

func TestMaterialized(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	require.NoError(t, r.SaveMaterialized(ctx, []model.MaterializedDocument{
		{EntityType: model.EntityUser, EntityID: "u2", Document: datatypes.JSONMap{"_id": "u2"}},
		{EntityType: model.EntityUser, EntityID: "u1", Document: datatypes.JSONMap{"_id": "u1"}},
	}))
	list, err := r.ListMaterialized(ctx, model.EntityUser, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].EntityID)

	require.NoError(t, r.DeleteMaterialized(ctx, model.EntityUser, []string{"u1"}))
	_, err = r.GetMaterialized(ctx, model.EntityUser, "u1")
	assert.Error(t, err)
	require.NoError(t, r.DeleteMaterialized(ctx, model.EntityUser, nil))
}
