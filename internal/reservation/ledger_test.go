package reservation

import (
	"context"
	"testing"

	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/repo/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newLedger(t *testing.T) (*Ledger, *gorm.DB) {
	db := repotest.Open(t)
	return NewLedger(db, zaptest.NewLogger(t).Sugar()), db
}

func TestReserve_Exclusive(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	claim := model.Reservation{EntityType: model.EntityUser, Key: "email", Value: "a@x.com", EntityID: "u1"}

	require.NoError(t, l.Reserve(ctx, db, claim))

	second := claim
	second.EntityID = "u2"
	err := l.Reserve(ctx, db, second)
	assert.ErrorIs(t, err, apperr.ErrDuplicateKey)

	holder, err := l.Holder(ctx, model.EntityUser, "email", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", holder)

	// the same value under another key or type is a separate claim
	assert.NoError(t, l.Reserve(ctx, db, model.Reservation{EntityType: model.EntityOrganization, Key: "email", Value: "a@x.com", EntityID: "o1"}))
}

func TestRelease_FreesValue(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Reserve(ctx, db, model.Reservation{EntityType: model.EntityUser, Key: "email", Value: "a@x.com", EntityID: "u1"}))

	held, err := l.Held(ctx, db, model.EntityUser, "email", "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", held)

	require.NoError(t, l.Release(ctx, db, model.EntityUser, "email", "u1"))
	_, err = l.Holder(ctx, model.EntityUser, "email", "a@x.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.NoError(t, l.Reserve(ctx, db, model.Reservation{EntityType: model.EntityUser, Key: "email", Value: "a@x.com", EntityID: "u2"}))
}

func TestReserve_RolledBackWithTransaction(t *testing.T) {
	l, db := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Reserve(ctx, db, model.Reservation{EntityType: model.EntityUser, Key: "email", Value: "taken@x.com", EntityID: "u1"}))

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := l.Reserve(ctx, tx, model.Reservation{EntityType: model.EntityUser, Key: "_id", Value: "u2", EntityID: "u2"}); err != nil {
			return err
		}
		return l.Reserve(ctx, tx, model.Reservation{EntityType: model.EntityUser, Key: "email", Value: "taken@x.com", EntityID: "u2"})
	})
	assert.ErrorIs(t, err, apperr.ErrDuplicateKey)

	_, err = l.Holder(ctx, model.EntityUser, "_id", "u2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReserve_EmptyValue(t *testing.T) {
	l, db := newLedger(t)
	var ve *apperr.ValidationError
	assert.ErrorAs(t, l.Reserve(context.Background(), db, model.Reservation{EntityType: model.EntityUser, Key: "email", EntityID: "u1"}), &ve)
}
