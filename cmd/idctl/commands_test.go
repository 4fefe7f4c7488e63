package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/repo"
	"github.com/richardliu001/identity-service/internal/repo/repotest"
	"github.com/richardliu001/identity-service/internal/reservation"
	"github.com/richardliu001/identity-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()
	db := repotest.Open(t)
	core := service.NewCore(db, eventstore.New(db, log), reservation.NewLedger(db, log), nil, log)
	svc := service.NewServices(core)

	_, err := svc.Organizations.Create(ctx, nil, service.CreateOrganizationInput{ID: "o1", Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	_, err = svc.Users.Create(ctx, nil, service.CreateUserInput{ID: "u1", Email: "a@x.com"})
	require.NoError(t, err)
	_, err = svc.Managers.Add(ctx, nil, service.RoleInput{User: "u1", Group: "o1"})
	require.NoError(t, err)

	a := newApp(db, log)
	res, err := a.rebuild(ctx, model.EntityTypes)
	require.NoError(t, err)
	assert.Equal(t, typeCounts{Normalized: 1, Materialized: 1}, res[model.EntityOrganization])
	assert.Equal(t, typeCounts{Normalized: 0, Materialized: 0}, res[model.EntityWorkspace])

	doc, err := repo.NewRepository(db, log).GetMaterialized(ctx, model.EntityOrganization, "o1")
	require.NoError(t, err)
	managers, ok := doc.Document["managers"].([]any)
	require.True(t, ok)
	require.Len(t, managers, 1)
	assert.Equal(t, "u1", managers[0].(map[string]any)["_id"])

	// a second rebuild leaves the same views
	again, err := a.rebuild(ctx, []string{model.EntityOrganization})
	require.NoError(t, err)
	assert.Equal(t, res[model.EntityOrganization], again[model.EntityOrganization])
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()
	db := repotest.Open(t)
	core := service.NewCore(db, eventstore.New(db, log), reservation.NewLedger(db, log), nil, log)
	svc := service.NewServices(core)
	_, err := svc.Organizations.Create(ctx, nil, service.CreateOrganizationInput{ID: "o1", Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	_, err = svc.Organizations.Create(ctx, nil, service.CreateOrganizationInput{ID: "o2", Name: "Other", Slug: "other"})
	require.NoError(t, err)

	a := newApp(db, log)
	drifts, err := a.verify(ctx, model.EntityOrganization, nil)
	require.NoError(t, err)
	assert.Equal(t, []drift{{EntityID: "o1", Status: driftMissing}, {EntityID: "o2", Status: driftMissing}}, drifts)

	_, err = a.rebuild(ctx, model.EntityTypes)
	require.NoError(t, err)
	drifts, err = a.verify(ctx, model.EntityOrganization, nil)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	doc, err := a.docs.GetNormalized(ctx, model.EntityOrganization, "o1")
	require.NoError(t, err)
	doc.Values["name"] = "Acme Inc"
	require.NoError(t, a.docs.SaveNormalized(ctx, doc))
	other, err := a.docs.GetNormalized(ctx, model.EntityOrganization, "o2")
	require.NoError(t, err)
	other.Deleted = true
	require.NoError(t, a.docs.SaveNormalized(ctx, other))

	drifts, err = a.verify(ctx, model.EntityOrganization, nil)
	require.NoError(t, err)
	require.Len(t, drifts, 2)
	assert.Equal(t, "o1", drifts[0].EntityID)
	assert.Equal(t, driftStale, drifts[0].Status)
	patch, err := json.Marshal(drifts[0].Patch)
	require.NoError(t, err)
	assert.Contains(t, string(patch), `"/name"`)
	assert.Equal(t, drift{EntityID: "o2", Status: driftOrphaned}, drifts[1])
}

func TestEntityTypes(t *testing.T) {
	all, err := entityTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, model.EntityTypes, all)

	_, err = entityTypes([]string{"user", "robot"})
	assert.EqualError(t, err, `unknown entity type "robot"`)
}

func TestNormalizeCmd_RejectsUnknownType(t *testing.T) {
	opened := false
	cmd := newNormalizeCmd(func() (*app, error) { opened = true; return nil, nil })
	cmd.SetArgs([]string{"robot", "r1"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
	assert.False(t, opened)
}
