package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/model"
	"go.uber.org/zap"
)

// Redis is a Broker over Redis PUBLISH/SUBSCRIBE.
type Redis struct {
	rdb     *redis.Client
	channel string
	log     *zap.SugaredLogger
}

// NewRedis returns a broker on Channel(prefix).
func NewRedis(rdb *redis.Client, prefix string, logger *zap.SugaredLogger) *Redis {
	return &Redis{rdb: rdb, channel: Channel(prefix), log: logger}
}

// Publish sends env to every subscriber.
func (r *Redis) Publish(ctx context.Context, env model.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return apperr.Transient("redis publish", err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by the server, so no
// announcement published afterwards is missed.
func (r *Redis) Subscribe(ctx context.Context) (Subscription, error) {
	ps := r.rdb.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, apperr.Transient("redis subscribe", err)
	}
	sub := &redisSubscription{
		ps:   ps,
		c:    make(chan model.Envelope, 64),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go sub.forward(r.log)
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	c    chan model.Envelope
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) C() <-chan model.Envelope { return s.c }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.quit)
		err = s.ps.Close()
		<-s.done
	})
	return err
}

func (s *redisSubscription) forward(log *zap.SugaredLogger) {
	defer close(s.done)
	defer close(s.c)
	for msg := range s.ps.Channel() {
		var env model.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Warnw("ignoring malformed announcement", "channel", msg.Channel, "error", err)
			continue
		}
		select {
		case s.c <- env:
		case <-s.quit:
			return
		}
	}
}
