// Package ws provides the WebSocket transport: one JSON-RPC frame per
// text message, one logical peer per connection. Dial produces the
// client side; Server upgrades inbound HTTP connections and hands each
// one to a callback as a ready-to-start transport.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/markpollack/acp-go/transport"
	"github.com/markpollack/acp-go/wire"
)

// Defaults for the WebSocket transport surface.
const (
	DefaultPath           = "/acp"
	DefaultIdleTimeout    = 30 * time.Minute
	DefaultConnectTimeout = 30 * time.Second
)

// Options holds resolved WebSocket configuration.
type Options struct {
	// Path is the HTTP path the server upgrades on.
	Path string

	// IdleTimeout closes a connection with no inbound traffic.
	IdleTimeout time.Duration

	// ConnectTimeout bounds the client-side dial handshake.
	ConnectTimeout time.Duration

	// QueueSize is the outbound queue high-water mark.
	QueueSize int

	// MaxMessageSize caps a single inbound frame.
	MaxMessageSize int64

	// Logger receives transport diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// OnFrameError is called for inbound frames that fail to decode.
	OnFrameError func(frame []byte, err error)
}

// Option configures the WebSocket transport.
type Option func(*Options)

// WithPath sets the HTTP upgrade path. Empty values are ignored.
func WithPath(p string) Option {
	return func(o *Options) {
		if p != "" {
			o.Path = p
		}
	}
}

// WithIdleTimeout sets the inbound idle timeout. Values <= 0 are ignored.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.IdleTimeout = d
		}
	}
}

// WithConnectTimeout sets the dial handshake deadline. Values <= 0 are ignored.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ConnectTimeout = d
		}
	}
}

// WithQueueSize sets the outbound queue high-water mark. Values <= 0 are ignored.
func WithQueueSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.QueueSize = n
		}
	}
}

// WithMaxMessageSize caps inbound frames in bytes. Values <= 0 are ignored.
func WithMaxMessageSize(n int64) Option {
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

// WithFrameErrorHandler sets the malformed-frame callback.
func WithFrameErrorHandler(fn func(frame []byte, err error)) Option {
	return func(o *Options) {
		o.OnFrameError = fn
	}
}

func resolve(opts ...Option) Options {
	o := Options{
		Path:           DefaultPath,
		IdleTimeout:    DefaultIdleTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		QueueSize:      transport.DefaultQueueSize,
		MaxMessageSize: transport.DefaultMaxMessageSize,
		Logger:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Conn is one WebSocket peer as a transport.Transport.
type Conn struct {
	opts Options
	ws   *websocket.Conn

	started atomic.Bool
	handler transport.Handler

	mu     sync.Mutex
	closed bool
	out    chan wire.Message

	doneOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error
}

var _ transport.Transport = (*Conn)(nil)

func newConn(ws *websocket.Conn, opts Options) *Conn {
	ws.SetReadLimit(opts.MaxMessageSize)
	return &Conn{
		opts: opts,
		ws:   ws,
		done: make(chan struct{}),
	}
}

// Dial connects to a WebSocket ACP endpoint (ws:// or wss:// URL) and
// returns the transport. The handshake is bounded by the connect
// timeout and the caller's context, whichever fires first.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	o := resolve(opts...)
	dialer := websocket.Dialer{HandshakeTimeout: o.ConnectTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}
	return newConn(ws, o), nil
}

// Start installs the inbound handler and launches the reader and writer.
func (c *Conn) Start(h transport.Handler) error {
	if h == nil {
		return fmt.Errorf("ws: nil handler")
	}
	if !c.started.CompareAndSwap(false, true) {
		return transport.ErrAlreadyStarted
	}
	c.handler = h
	c.out = make(chan wire.Message, c.opts.QueueSize)

	var g errgroup.Group
	g.Go(c.readLoop)
	g.Go(c.writeLoop)
	go func() {
		if err := g.Wait(); err != nil {
			c.setErr(err)
		}
		c.ws.Close()
		c.terminate()
	}()
	return nil
}

// Send enqueues one frame. Fails with ErrClosed after Close and with
// ErrOverflow when the queue is full; overflow terminates the transport.
func (c *Conn) Send(msg wire.Message) error {
	if !c.started.Load() {
		return transport.ErrNotStarted
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	select {
	case c.out <- msg:
		return nil
	default:
		c.closed = true
		close(c.out)
		c.setErr(transport.ErrOverflow)
		return transport.ErrOverflow
	}
}

// Close stops accepting sends, flushes the outbound queue, and sends a
// close frame so the peer completes its inbound stream. Idempotent.
func (c *Conn) Close() error {
	if !c.started.Load() {
		c.ws.Close()
		c.terminate()
		return nil
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	c.mu.Unlock()
	<-c.done
	return nil
}

// Done is closed when the peer disconnects or Close completes.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports the fatal transport error, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

func (c *Conn) terminate() {
	c.doneOnce.Do(func() { close(c.done) })
}

// closeOutbound stops the writer after the reader has failed, so both
// loop goroutines exit and Done can fire.
func (c *Conn) closeOutbound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// readLoop delivers inbound text frames until the peer closes, the
// idle timeout fires, or the connection drops.
func (c *Conn) readLoop() error {
	defer c.closeOutbound()
	for {
		// After a local close, only a close reply is expected; shorten
		// the deadline so Close cannot hang for the whole idle timeout.
		c.mu.Lock()
		idle := c.opts.IdleTimeout
		if c.closed {
			idle = 5 * time.Second
		}
		c.mu.Unlock()
		c.ws.SetReadDeadline(time.Now().Add(idle))
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("ws: read: %w", err)
		}
		if kind != websocket.TextMessage {
			c.opts.Logger.Debug("acp: ws: ignoring non-text frame", "kind", kind)
			continue
		}
		msg, err := wire.Decode(data)
		if err != nil {
			c.opts.Logger.Debug("acp: ws: dropping malformed frame", "error", err)
			if c.opts.OnFrameError != nil {
				c.opts.OnFrameError(data, err)
			}
			continue
		}
		c.handler(msg)
	}
}

// writeLoop drains the outbound queue, then sends a close frame.
func (c *Conn) writeLoop() error {
	for msg := range c.out {
		data, err := wire.Encode(msg)
		if err != nil {
			c.opts.Logger.Warn("acp: ws: dropping unencodable frame", "error", err)
			continue
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("ws: write: %w", err)
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	// Kick a reader blocked mid-ReadMessage so it exits promptly if the
	// peer never replies to the close frame.
	c.ws.SetReadDeadline(deadline)
	return nil
}

// Server accepts WebSocket upgrades and hands each connection to the
// callback as a transport ready for Start. One logical peer per
// connection.
type Server struct {
	opts     Options
	onConn   func(*Conn)
	upgrader websocket.Upgrader

	mu   sync.Mutex
	srv  *http.Server
	listening bool
}

// NewServer creates a WebSocket server. The callback runs on a
// per-connection goroutine and is responsible for building a session on
// the transport; the connection stays open until the transport
// terminates.
func NewServer(onConn func(*Conn), opts ...Option) *Server {
	o := resolve(opts...)
	return &Server{
		opts:   o,
		onConn: onConn,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades requests on the configured path.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.opts.Path {
		http.NotFound(w, r)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Error("acp: ws: upgrade failed", "error", err)
		return
	}
	s.opts.Logger.Info("acp: ws: peer connected", "remote", ws.RemoteAddr().String())

	conn := newConn(ws, s.opts)
	s.onConn(conn)
	<-conn.Done()
	s.opts.Logger.Info("acp: ws: peer disconnected", "remote", ws.RemoteAddr().String())
}

// ListenAndServe serves upgrades on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return fmt.Errorf("ws: server already listening")
	}
	s.listening = true
	s.srv = &http.Server{Addr: addr, Handler: s}
	srv := s.srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: listen %s: %w", addr, err)
	}
	return nil
}

// Shutdown stops accepting upgrades and closes the listener. Open
// connections terminate through their own transports.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
