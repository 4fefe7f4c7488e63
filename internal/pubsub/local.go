package pubsub

import (
	"context"
	"sync"

	"github.com/richardliu001/identity-service/internal/model"
)

// Local is an in-process Broker for single-binary deployments and tests.
// Slow subscribers drop announcements once their buffer is full.
type Local struct {
	mu   sync.Mutex
	subs map[*localSubscription]struct{}
}

func NewLocal() *Local {
	return &Local{subs: make(map[*localSubscription]struct{})}
}

func (l *Local) Publish(_ context.Context, env model.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for s := range l.subs {
		select {
		case s.c <- env:
		default:
		}
	}
	return nil
}

func (l *Local) Subscribe(context.Context) (Subscription, error) {
	s := &localSubscription{l: l, c: make(chan model.Envelope, 256)}
	l.mu.Lock()
	l.subs[s] = struct{}{}
	l.mu.Unlock()
	return s, nil
}

// Subscribers returns the number of open subscriptions.
func (l *Local) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

type localSubscription struct {
	l    *Local
	c    chan model.Envelope
	once sync.Once
}

func (s *localSubscription) C() <-chan model.Envelope { return s.c }

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.l.mu.Lock()
		delete(s.l.subs, s)
		close(s.c)
		s.l.mu.Unlock()
	})
	return nil
}
