package agent

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
)

// Clock supplies time to a session.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Session carries the identity and clock of one question/answer exchange.
type Session struct {
	ID      string
	Clock   Clock
	Started time.Time
}

func NewSession(clock Clock) *Session {
	if clock == nil {
		clock = SystemClock
	}
	return &Session{
		ID:      ksuid.New().String(),
		Clock:   clock,
		Started: clock.Now(),
	}
}

func (s *Session) Now() time.Time {
	return s.Clock.Now()
}

func (s *Session) Elapsed() time.Duration {
	return s.Clock.Now().Sub(s.Started)
}

type sessionCtxKey struct{}

func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext returns the session in ctx, or a fresh one on the system clock.
func SessionFromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(sessionCtxKey{}).(*Session); ok && s != nil {
		return s
	}
	return NewSession(SystemClock)
}
