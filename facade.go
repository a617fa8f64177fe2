package acp

import (
	"context"
	"encoding/json"

	"github.com/markpollack/acp-go/wire"
)

// requestHandler adapts a typed facade method to the session's raw
// handler shape. Undecodable params fail the request with
// INVALID_PARAMS rather than reaching the method.
func requestHandler[Req, Resp any](f func(context.Context, *Req) (*Resp, error)) RequestHandler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		req := new(Req)
		if err := wire.Unmarshal(params, req); err != nil {
			return nil, Errorf(CodeInvalidParams, "invalid params: %v", err)
		}
		return f(ctx, req)
	}
}

// notificationHandler adapts a typed notification consumer. A payload
// that fails to decode is dropped; notifications have no reply channel
// to report it on.
func notificationHandler[N any](f func(context.Context, *N)) NotificationHandler {
	return func(ctx context.Context, params json.RawMessage) {
		n := new(N)
		if err := wire.Unmarshal(params, n); err != nil {
			return
		}
		f(ctx, n)
	}
}

// call issues a typed request through the session.
func call[Resp any](ctx context.Context, s *Session, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := s.Call(ctx, method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
