package acp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Default session configuration values.
const (
	defaultCallTimeout     = 60 * time.Second
	defaultNotifyQueueSize = 1024 // decouples notification dispatch from the reader
)

// RequestHandler serves one inbound request method. It runs on its own
// goroutine, so it may block — including calling back into the peer —
// without stalling dispatch. Returning *Error puts that exact code on
// the wire; any other error becomes INTERNAL_ERROR.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler consumes one inbound notification method.
// Handlers for the same session run one at a time, in arrival order.
// They must not issue blocking calls on the same session.
type NotificationHandler func(ctx context.Context, params json.RawMessage)

// SessionOptions holds resolved session configuration. The handler
// registries are immutable once the session is constructed.
type SessionOptions struct {
	// CallTimeout applies to Call when the caller's context carries no
	// deadline of its own.
	CallTimeout time.Duration

	// NotifyQueueSize buffers inbound notifications between the reader
	// and the ordered dispatch worker.
	NotifyQueueSize int

	// Logger receives session diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
}

// SessionOption configures a Session at construction time.
type SessionOption func(*SessionOptions)

// WithCallTimeout sets the default deadline for outbound requests.
// Values <= 0 are ignored.
func WithCallTimeout(d time.Duration) SessionOption {
	return func(o *SessionOptions) {
		if d > 0 {
			o.CallTimeout = d
		}
	}
}

// WithNotifyQueueSize sets the notification dispatch buffer.
// Values <= 0 are ignored.
func WithNotifyQueueSize(n int) SessionOption {
	return func(o *SessionOptions) {
		if n > 0 {
			o.NotifyQueueSize = n
		}
	}
}

// WithLogger sets the logger for session diagnostics.
func WithLogger(l *slog.Logger) SessionOption {
	return func(o *SessionOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithRequestHandler registers a handler for an inbound request method.
func WithRequestHandler(method string, h RequestHandler) SessionOption {
	return func(o *SessionOptions) {
		if h != nil {
			o.requestHandlers[method] = h
		}
	}
}

// WithNotificationHandler registers a handler for an inbound
// notification method.
func WithNotificationHandler(method string, h NotificationHandler) SessionOption {
	return func(o *SessionOptions) {
		if h != nil {
			o.notificationHandlers[method] = h
		}
	}
}

func resolveSessionOptions(opts ...SessionOption) SessionOptions {
	o := SessionOptions{
		CallTimeout:          defaultCallTimeout,
		NotifyQueueSize:      defaultNotifyQueueSize,
		Logger:               slog.Default(),
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
