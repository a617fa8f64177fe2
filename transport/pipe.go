package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/markpollack/acp-go/wire"
)

// Pipe returns two connected in-memory transports: frames sent on one
// arrive, in order, on the other. Closing either end flushes the frames
// already queued and then terminates both. Intended for tests and
// in-process peer wiring.
func Pipe(opts ...Option) (*PipeEnd, *PipeEnd) {
	o := Resolve(opts...)
	ab := make(chan wire.Message, o.QueueSize)
	ba := make(chan wire.Message, o.QueueSize)
	a := &PipeEnd{opts: o, name: "a", out: ab, in: ba, done: make(chan struct{})}
	b := &PipeEnd{opts: o, name: "b", out: ba, in: ab, done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// PipeEnd is one endpoint of an in-memory transport pair.
type PipeEnd struct {
	opts Options
	name string
	peer *PipeEnd

	out chan wire.Message
	in  chan wire.Message

	started atomic.Bool
	handler Handler

	mu     sync.Mutex
	closed bool

	doneOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error
}

var _ Transport = (*PipeEnd)(nil)

// Start installs the inbound handler and launches the reader goroutine.
func (p *PipeEnd) Start(h Handler) error {
	if h == nil {
		return fmt.Errorf("transport: pipe: nil handler")
	}
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	p.handler = h
	go p.readLoop()
	return nil
}

// Send enqueues one frame for the peer. Fails with ErrClosed after
// either end has closed, and with ErrOverflow when the queue is full.
func (p *PipeEnd) Send(msg wire.Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	select {
	case p.out <- msg:
		p.mu.Unlock()
		return nil
	default:
	}
	// Overflow: mark closed here, but fail outside the lock — terminate
	// reaches for the peer's lock and must not nest under ours.
	p.closeLocked()
	p.mu.Unlock()
	p.fail(ErrOverflow)
	return ErrOverflow
}

// Close stops accepting sends on this end and lets the peer drain what
// was already queued; both ends then terminate. Idempotent.
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	p.closeLocked()
	p.mu.Unlock()
	p.terminate()
	return nil
}

// closeLocked marks this end closed and closes the outbound channel so
// the peer's reader drains and exits. Caller holds p.mu.
func (p *PipeEnd) closeLocked() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.out)
}

// Done is closed when either end closes.
func (p *PipeEnd) Done() <-chan struct{} { return p.done }

// Err reports the fatal transport error, if any.
func (p *PipeEnd) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *PipeEnd) fail(err error) {
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()
	p.terminate()
}

// terminate fires this end's Done and propagates closure to the peer so
// a close on either end terminates both. A started peer fires its own
// Done once its reader drains the frames already in flight; an
// unstarted peer has no reader, so it is terminated here directly.
func (p *PipeEnd) terminate() {
	p.doneOnce.Do(func() { close(p.done) })
	p.peer.mu.Lock()
	p.peer.closeLocked()
	p.peer.mu.Unlock()
	if !p.peer.started.Load() {
		p.peer.doneOnce.Do(func() { close(p.peer.done) })
	}
}

// readLoop delivers inbound frames until the peer closes its outbound
// channel, then terminates this end.
func (p *PipeEnd) readLoop() {
	for msg := range p.in {
		p.handler(msg)
	}
	p.terminate()
}
