package transport

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/markpollack/acp-go/wire"
)

// Stdio is a line-framed transport over a duplex byte stream: one JSON
// object per LF-terminated line. It is typically bound to a process's
// stdin/stdout but accepts any reader/writer pair.
//
// A dedicated reader goroutine parses inbound lines and a dedicated
// writer goroutine drains the outbound queue, so a slow handler never
// blocks the peer's writes and concurrent senders never interleave
// partial frames.
type Stdio struct {
	opts Options

	r io.Reader
	w io.Writer

	started atomic.Bool
	handler Handler

	mu      sync.Mutex
	closed  bool
	out     chan wire.Message
	flushed chan struct{}

	doneOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error
}

var _ Transport = (*Stdio)(nil)

// NewStdio creates a stdio transport reading frames from r and writing
// frames to w. Call Start to launch the worker goroutines.
func NewStdio(r io.Reader, w io.Writer, opts ...Option) *Stdio {
	return &Stdio{
		opts:    Resolve(opts...),
		r:       r,
		w:       w,
		flushed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start installs the inbound handler and launches the reader and writer.
func (t *Stdio) Start(h Handler) error {
	if h == nil {
		return fmt.Errorf("transport: stdio: nil handler")
	}
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	t.handler = h
	t.out = make(chan wire.Message, t.opts.QueueSize)
	go t.readLoop()
	go t.writeLoop()
	return nil
}

// Send enqueues one frame. Fails with ErrClosed after Close and with
// ErrOverflow when the queue is full; overflow terminates the transport.
func (t *Stdio) Send(msg wire.Message) error {
	if !t.started.Load() {
		return ErrNotStarted
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	select {
	case t.out <- msg:
		return nil
	default:
		t.closed = true
		close(t.out)
		t.fail(ErrOverflow)
		return ErrOverflow
	}
}

// Close stops accepting sends and flushes the queued outbound frames.
// Idempotent; returns after the writer has drained.
func (t *Stdio) Close() error {
	if !t.started.Load() {
		t.terminate()
		return nil
	}
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.out)
	}
	t.mu.Unlock()

	<-t.flushed
	t.terminate()
	return nil
}

// Done is closed when the peer disconnects or Close completes.
func (t *Stdio) Done() <-chan struct{} { return t.done }

// Err reports the fatal transport error, if any.
func (t *Stdio) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *Stdio) fail(err error) {
	t.errMu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.errMu.Unlock()
	t.terminate()
}

func (t *Stdio) terminate() {
	t.doneOnce.Do(func() { close(t.done) })
}

// readLoop parses one frame per line until EOF or a read error. Blank
// and non-JSON lines (agent startup banners) are skipped; frames that
// fail to decode are reported through OnFrameError and dropped.
func (t *Stdio) readLoop() {
	scanner := bufio.NewScanner(t.r)
	initCap := min(4096, t.opts.MaxMessageSize)
	scanner.Buffer(make([]byte, 0, initCap), t.opts.MaxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		msg, err := wire.Decode(line)
		if err != nil {
			t.opts.Logger.Debug("acp: stdio: dropping malformed frame", "error", err)
			if t.opts.OnFrameError != nil {
				t.opts.OnFrameError(append([]byte(nil), line...), err)
			}
			continue
		}
		t.handler(msg)
	}

	if err := scanner.Err(); err != nil {
		t.fail(fmt.Errorf("transport: stdio read: %w", err))
		return
	}
	// Peer closed its end; the inbound stream completed normally.
	t.terminate()
}

// writeLoop drains the outbound queue until Send/Close closes it.
func (t *Stdio) writeLoop() {
	defer close(t.flushed)
	for msg := range t.out {
		data, err := wire.Encode(msg)
		if err != nil {
			t.opts.Logger.Warn("acp: stdio: dropping unencodable frame", "error", err)
			continue
		}
		data = append(data, '\n')
		if _, err := t.w.Write(data); err != nil {
			t.fail(fmt.Errorf("transport: stdio write: %w", err))
			return
		}
	}
}
