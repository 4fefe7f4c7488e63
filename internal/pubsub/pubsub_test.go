package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "identity.command-processed", Channel("identity"))
}

func TestRedisPublish(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	b := NewRedis(rdb, "sso", zaptest.NewLogger(t).Sugar())

	env := model.Envelope{EventID: "e1", EntityType: model.EntityUser, EntityID: "u1"}
	mock.ExpectPublish("sso.command-processed", []byte(`{"eventId":"e1","entityType":"user","entityId":"u1"}`)).SetVal(1)

	require.NoError(t, b.Publish(context.Background(), env))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublish_Transient(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	b := NewRedis(rdb, "sso", zaptest.NewLogger(t).Sugar())

	mock.ExpectPublish("sso.command-processed", []byte(`{"eventId":"e1","entityType":"user","entityId":"u1"}`)).
		SetErr(errors.New("connection refused"))

	err := b.Publish(context.Background(), model.Envelope{EventID: "e1", EntityType: model.EntityUser, EntityID: "u1"})
	assert.True(t, apperr.IsTransient(err))
}

func TestLocal_FanOut(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	s1, err := l.Subscribe(ctx)
	require.NoError(t, err)
	s2, err := l.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Subscribers())

	env := model.Envelope{EventID: "e1", EntityType: model.EntityUser, EntityID: "u1"}
	require.NoError(t, l.Publish(ctx, env))
	assert.Equal(t, env, <-s1.C())
	assert.Equal(t, env, <-s2.C())

	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close())
	assert.Equal(t, 1, l.Subscribers())
	_, open := <-s1.C()
	assert.False(t, open)
}
