package acp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/markpollack/acp-go/internal/errfmt"
	"github.com/markpollack/acp-go/transport"
	"github.com/markpollack/acp-go/wire"
)

// State is the session lifecycle phase.
type State int32

const (
	StateNew State = iota
	StateRunning
	StateClosing
	StateClosed
)

// String returns the lower-case state name, for logs.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is a bidirectional JSON-RPC 2.0 peer bound to one transport.
//
// Outbound requests are correlated to responses by monotonically
// increasing decimal string ids; each Call owns one entry in the pending
// table and completes, times out, or is cancelled at close. Inbound
// requests dispatch to registered handlers on their own goroutines, so a
// handler may call back into the peer while it runs. Inbound
// notifications dispatch through a single ordered worker, so a peer's
// notifications are observed in the order it sent them; a Call does not
// return until the notifications that preceded its response have been
// handled.
//
// Handler registries are fixed at construction. All worker goroutines
// exit by the time Close returns.
type Session struct {
	opts SessionOptions
	tr   transport.Transport

	nextID atomic.Int64

	mu      sync.Mutex
	state   State
	pending map[string]chan wire.Message

	notifyCh chan wire.Message
	notify   notifyTracker  // in-flight notification handlers
	workerWG sync.WaitGroup // request handlers + notify worker

	handlerCtx    context.Context
	cancelHandler context.CancelCauseFunc

	closeOnce sync.Once
	closing   chan struct{}
	closed    chan struct{}
}

// NewSession creates a session bound to tr. Handlers are registered
// through options and cannot change afterwards; call Start to begin
// dispatching.
func NewSession(tr transport.Transport, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Session{
		opts:          resolveSessionOptions(opts...),
		tr:            tr,
		pending:       make(map[string]chan wire.Message),
		handlerCtx:    ctx,
		cancelHandler: cancel,
		closing:       make(chan struct{}),
		closed:        make(chan struct{}),
	}
}

// Start launches the transport and the dispatch workers. The facade
// must be fully constructed before Start so the first inbound message
// finds its handlers in place.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateNew {
		state := s.state
		s.mu.Unlock()
		if state == StateRunning {
			return fmt.Errorf("acp: session already started")
		}
		return ErrSessionClosed
	}
	s.state = StateRunning
	s.notifyCh = make(chan wire.Message, s.opts.NotifyQueueSize)
	s.mu.Unlock()

	s.workerWG.Add(1)
	go s.notifyLoop()

	if err := s.tr.Start(s.dispatch); err != nil {
		s.shutdown(err)
		<-s.closed
		return fmt.Errorf("acp: start transport: %w", err)
	}

	// Transport termination (peer disconnect, fatal transport error)
	// tears the session down even without an explicit Close.
	go func() {
		select {
		case <-s.tr.Done():
			s.shutdown(s.tr.Err())
		case <-s.closing:
		}
	}()
	return nil
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Call sends a request and blocks until the response arrives, the
// deadline fires, or the session closes. When ctx carries no deadline
// the session's default call timeout applies. result may be nil to
// discard the response payload; a peer error surfaces as *Error with
// the peer's code intact.
func (s *Session) Call(ctx context.Context, method string, params, result any) error {
	raw, err := wire.Marshal(params)
	if err != nil {
		return fmt.Errorf("acp: %s: %w", method, err)
	}

	id := strconv.FormatInt(s.nextID.Add(1), 10)
	ch := make(chan wire.Message, 1)

	s.mu.Lock()
	switch s.state {
	case StateNew:
		s.mu.Unlock()
		return ErrNotStarted
	case StateClosing, StateClosed:
		s.mu.Unlock()
		return fmt.Errorf("acp: %s: %w", method, ErrSessionClosed)
	}
	s.pending[id] = ch
	s.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}

	if err := s.tr.Send(wire.NewRequest(wire.StringID(id), method, raw)); err != nil {
		s.removePending(id)
		if errors.Is(err, transport.ErrClosed) {
			return fmt.Errorf("acp: %s: %w", method, ErrSessionClosed)
		}
		return fmt.Errorf("acp: send %s: %w", method, err)
	}

	select {
	case msg, ok := <-ch:
		return s.completeCall(method, msg, ok, result)
	case <-ctx.Done():
		s.removePending(id)
		// The response may have landed just before cancellation; prefer
		// it over the context error.
		select {
		case msg, ok := <-ch:
			return s.completeCall(method, msg, ok, result)
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("acp: %s: %w", method, ErrTimeout)
		}
		return fmt.Errorf("acp: %s: %w", method, ctx.Err())
	}
}

// completeCall turns a delivered response into the caller's result.
func (s *Session) completeCall(method string, msg wire.Message, ok bool, result any) error {
	if !ok {
		return fmt.Errorf("acp: %s: %w", method, ErrSessionClosed)
	}

	// Notifications the peer sent before this response must be observed
	// before the call returns. The wait is abandoned if the session
	// tears down underneath us.
	s.awaitNotifications()

	if msg.Error != nil {
		return errorFromWire(msg.Error)
	}
	if result != nil {
		if err := wire.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("acp: %s result: %w", method, err)
		}
	}
	return nil
}

// awaitNotifications blocks until the in-flight notification handlers
// have finished, or the session starts closing.
func (s *Session) awaitNotifications() {
	ch := s.notify.idle()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-s.closing:
	}
}

// notifyTracker counts queued-but-unhandled notifications. It replaces
// a WaitGroup because the count oscillates through zero while waiters
// come and go, which WaitGroup forbids.
type notifyTracker struct {
	mu      sync.Mutex
	count   int
	waiters []chan struct{}
}

func (n *notifyTracker) add() {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func (n *notifyTracker) done() {
	n.mu.Lock()
	n.count--
	if n.count == 0 {
		for _, ch := range n.waiters {
			close(ch)
		}
		n.waiters = nil
	}
	n.mu.Unlock()
}

// idle returns nil when nothing is in flight, otherwise a channel
// closed once the count next reaches zero.
func (n *notifyTracker) idle() chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.count == 0 {
		return nil
	}
	ch := make(chan struct{})
	n.waiters = append(n.waiters, ch)
	return ch
}

// Notify sends a notification; no reply is expected and none arrives.
// Returns once the frame is queued on the transport.
func (s *Session) Notify(method string, params any) error {
	raw, err := wire.Marshal(params)
	if err != nil {
		return fmt.Errorf("acp: %s: %w", method, err)
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	switch state {
	case StateNew:
		return ErrNotStarted
	case StateClosing, StateClosed:
		return fmt.Errorf("acp: %s: %w", method, ErrSessionClosed)
	}

	if err := s.tr.Send(wire.NewNotification(method, raw)); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return fmt.Errorf("acp: %s: %w", method, ErrSessionClosed)
		}
		return fmt.Errorf("acp: send %s: %w", method, err)
	}
	return nil
}

// Close shuts the session down gracefully: pending calls fail with
// ErrSessionClosed, the outbound queue is flushed, and every worker has
// exited by the time it returns. Idempotent.
func (s *Session) Close() error {
	s.shutdown(nil)
	<-s.closed
	return nil
}

// shutdown moves the session to CLOSING and, once the workers have
// drained, to CLOSED. Runs at most once; callers wait on s.closed.
func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.state == StateNew {
			// Never started: nothing to drain.
			s.state = StateClosed
			s.mu.Unlock()
			s.cancelHandler(ErrSessionClosed)
			close(s.closing)
			close(s.closed)
			return
		}
		s.state = StateClosing
		s.mu.Unlock()

		if cause != nil {
			s.opts.Logger.Warn("acp: session closing on transport failure", "error", cause)
		}

		close(s.closing)
		s.cancelHandler(ErrSessionClosed)
		s.drainPending()

		go func() {
			s.tr.Close()
			s.workerWG.Wait()

			s.mu.Lock()
			s.state = StateClosed
			s.mu.Unlock()
			close(s.closed)
		}()
	})
}

// drainPending fails every outstanding call with ErrSessionClosed.
func (s *Session) drainPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func (s *Session) removePending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// dispatch routes one inbound frame. Runs on the transport's reader
// goroutine, so it never blocks on handler work: requests spawn a
// goroutine, notifications enqueue to the ordered worker, responses
// complete a waiting Call through its buffered channel.
func (s *Session) dispatch(msg wire.Message) {
	switch msg.Kind() {
	case wire.KindResponse:
		s.dispatchResponse(msg)
	case wire.KindRequest:
		s.dispatchRequest(msg)
	case wire.KindNotification:
		s.dispatchNotification(msg)
	}
}

func (s *Session) dispatchResponse(msg wire.Message) {
	key, err := msg.ID.Key()
	if err != nil {
		s.opts.Logger.Warn("acp: dropping response with unusable id", "error", err)
		return
	}

	s.mu.Lock()
	ch, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if !ok {
		// Late reply after timeout, or a duplicate. Drop.
		s.opts.Logger.Debug("acp: dropping unmatched response", "id", key)
		return
	}
	ch <- msg
}

func (s *Session) dispatchRequest(msg wire.Message) {
	h, ok := s.opts.requestHandlers[msg.Method]
	if !ok {
		s.respond(wire.NewErrorResponse(msg.ID, &wire.Error{
			Code:    CodeMethodNotFound,
			Message: "method not found: " + msg.Method,
		}))
		return
	}

	// Registering the worker and checking the state must be atomic:
	// once shutdown flips to CLOSING it waits on workerWG, and no new
	// handler may join after that.
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		s.opts.Logger.Debug("acp: dropping request on closing session", "method", msg.Method)
		return
	}
	s.workerWG.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.workerWG.Done()
		result, err := h(s.handlerCtx, msg.Params)
		if err != nil {
			s.respond(wire.NewErrorResponse(msg.ID, handlerError(err)))
			return
		}
		raw, err := wire.Marshal(result)
		if err != nil {
			s.respond(wire.NewErrorResponse(msg.ID, &wire.Error{
				Code:    CodeInternalError,
				Message: errfmt.Truncate("marshal result: " + err.Error()),
			}))
			return
		}
		s.respond(wire.NewResponse(msg.ID, raw))
	}()
}

// handlerError maps a handler failure to the wire error object. Typed
// protocol errors keep their code; anything else becomes INTERNAL_ERROR.
func handlerError(err error) *wire.Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.toWire()
	}
	return &wire.Error{
		Code:    CodeInternalError,
		Message: errfmt.Truncate(err.Error()),
	}
}

// respond sends a response best-effort: the transport may already be
// closing, in which case the peer times the request out on its side.
func (s *Session) respond(msg wire.Message) {
	if err := s.tr.Send(msg); err != nil {
		s.opts.Logger.Debug("acp: dropping response on closing transport",
			"id", msg.ID.String(), "error", err)
	}
}

func (s *Session) dispatchNotification(msg wire.Message) {
	if _, ok := s.opts.notificationHandlers[msg.Method]; !ok {
		// Notifications have no reply channel; unknown ones vanish.
		s.opts.Logger.Debug("acp: dropping unknown notification", "method", msg.Method)
		return
	}

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.notify.add()
	s.mu.Unlock()

	select {
	case s.notifyCh <- msg:
	case <-s.closing:
		s.notify.done()
	}
}

// notifyLoop delivers notifications one at a time in arrival order.
func (s *Session) notifyLoop() {
	defer s.workerWG.Done()
	for {
		select {
		case msg := <-s.notifyCh:
			h := s.opts.notificationHandlers[msg.Method]
			h(s.handlerCtx, msg.Params)
			s.notify.done()
		case <-s.closing:
			// Release anything still queued without invoking handlers.
			for {
				select {
				case <-s.notifyCh:
					s.notify.done()
				default:
					return
				}
			}
		}
	}
}
