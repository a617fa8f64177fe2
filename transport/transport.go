// Package transport defines how JSON-RPC frames reach the peer and
// provides the line-framed stdio and in-memory implementations. The
// WebSocket implementation lives in the ws subpackage.
//
// A Transport delivers whole frames in order. Send only queues; delivery
// is asynchronous through a single writer goroutine, so multiple
// producers may call Send concurrently. Receive dispatch happens on a
// dedicated reader goroutine via the callback passed to Start, which
// therefore must not block for long.
package transport

import (
	"errors"
	"log/slog"

	"github.com/markpollack/acp-go/wire"
)

// Sentinel errors shared by all transport implementations.
var (
	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrNotStarted indicates Send was called before Start.
	ErrNotStarted = errors.New("transport: not started")

	// ErrClosed indicates the transport is closed or closing.
	ErrClosed = errors.New("transport: closed")

	// ErrOverflow indicates the outbound queue hit its high-water mark.
	// Overflow is fatal: the transport terminates.
	ErrOverflow = errors.New("transport: outbound queue overflow")
)

// Handler receives every inbound decoded frame, invoked on the
// transport's reader goroutine in arrival order.
type Handler func(msg wire.Message)

// Transport is the frame delivery contract shared by stdio, WebSocket,
// and the in-memory pair.
type Transport interface {
	// Start installs the inbound handler and launches the worker
	// goroutines. Calling it a second time fails with ErrAlreadyStarted.
	Start(h Handler) error

	// Send enqueues one frame for delivery and returns once queued.
	// Safe for concurrent use.
	Send(msg wire.Message) error

	// Close stops accepting sends, flushes the queued outbound frames,
	// and releases the workers. Idempotent.
	Close() error

	// Done is closed when the peer has disconnected or the transport
	// has been closed.
	Done() <-chan struct{}

	// Err reports why the transport terminated: nil after a clean close
	// or peer EOF, otherwise the fatal transport error.
	Err() error
}

// Default tuning shared by the implementations.
const (
	// DefaultQueueSize is the outbound high-water mark; exceeding it is
	// a fatal transport error rather than a silent stall.
	DefaultQueueSize = 4096

	// DefaultMaxMessageSize caps a single inbound frame.
	DefaultMaxMessageSize = 4 << 20
)

// Options holds resolved transport configuration.
type Options struct {
	// QueueSize is the outbound queue high-water mark.
	QueueSize int

	// MaxMessageSize is the maximum inbound frame size in bytes.
	MaxMessageSize int

	// Logger receives transport diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// OnFrameError is called for each inbound frame that fails to
	// decode. The reader continues; malformed frames are not fatal.
	OnFrameError func(frame []byte, err error)
}

// Option configures a transport at construction time.
type Option func(*Options)

// WithQueueSize sets the outbound queue high-water mark.
// Values <= 0 are ignored.
func WithQueueSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.QueueSize = n
		}
	}
}

// WithMaxMessageSize sets the maximum inbound frame size in bytes.
// Values <= 0 are ignored.
func WithMaxMessageSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxMessageSize = n
		}
	}
}

// WithLogger sets the logger for transport diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithFrameErrorHandler sets the callback invoked for inbound frames
// that fail to decode.
func WithFrameErrorHandler(fn func(frame []byte, err error)) Option {
	return func(o *Options) {
		o.OnFrameError = fn
	}
}

// Resolve applies opts over the defaults.
func Resolve(opts ...Option) Options {
	o := Options{
		QueueSize:      DefaultQueueSize,
		MaxMessageSize: DefaultMaxMessageSize,
		Logger:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
