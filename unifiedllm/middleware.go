package unifiedllm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SendFunc is the shape of Session.SendMessage.
type SendFunc func(ctx context.Context, input string) (string, error)

// Middleware wraps a send. It receives the input and a next function that
// calls the downstream handler.
type Middleware func(ctx context.Context, input string, next SendFunc) (string, error)

// wrappedSession applies middleware around an inner session. It forwards
// ModelLister and Describer so wrapping never hides capabilities.
type wrappedSession struct {
	inner Session
	send  SendFunc
}

// Wrap returns a session whose sends pass through mws. The first registered
// middleware runs first.
func Wrap(s Session, mws ...Middleware) Session {
	if len(mws) == 0 {
		return s
	}
	handler := SendFunc(s.SendMessage)
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		next := handler
		handler = func(ctx context.Context, input string) (string, error) {
			return mw(ctx, input, next)
		}
	}
	return &wrappedSession{inner: s, send: handler}
}

func (w *wrappedSession) SendMessage(ctx context.Context, input string) (string, error) {
	return w.send(ctx, input)
}

func (w *wrappedSession) ListModels(ctx context.Context) ([]string, error) {
	if l, ok := w.inner.(ModelLister); ok {
		return l.ListModels(ctx)
	}
	return nil, newConfigurationError("session cannot list models")
}

func (w *wrappedSession) Provider() string {
	if d, ok := w.inner.(Describer); ok {
		return d.Provider()
	}
	return ""
}

func (w *wrappedSession) Model() string {
	if d, ok := w.inner.(Describer); ok {
		return d.Model()
	}
	return ""
}

// LoggingMiddleware records every send with its duration and sizes.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(ctx context.Context, input string, next SendFunc) (string, error) {
		start := time.Now()
		logger.Debug().Int("input_bytes", len(input)).Msg("sending message")

		reply, err := next(ctx, input)
		if err != nil {
			logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("send failed")
			return reply, err
		}
		logger.Info().
			Dur("duration", time.Since(start)).
			Int("input_bytes", len(input)).
			Int("reply_bytes", len(reply)).
			Msg("reply received")
		return reply, nil
	}
}
