package paycore

import (
	"context"
	"sync"
)

// inflightCall is one outbound charge shared between concurrent callers that
// derived the same idempotency key.
type inflightCall struct {
	resp *GatewayResponse
	err  error
	done chan struct{}
}

// InflightGroup coalesces concurrent gateway calls that carry the same
// idempotency key: the first caller owns the outbound request, later callers
// wait for its result. The gateway would deduplicate anyway; coalescing just
// saves the duplicate round trips.
type InflightGroup struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

// NewInflightGroup returns an empty group.
func NewInflightGroup() *InflightGroup {
	return &InflightGroup{calls: make(map[string]*inflightCall)}
}

// join returns the call for key. owner is true for the caller that must
// perform the request and later invoke complete.
func (g *InflightGroup) join(key string) (call *inflightCall, owner bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if call, ok := g.calls[key]; ok {
		return call, false
	}
	call = &inflightCall{done: make(chan struct{})}
	g.calls[key] = call
	return call, true
}

// complete publishes the owner's result and releases waiters.
func (g *InflightGroup) complete(key string, resp *GatewayResponse, err error) {
	g.mu.Lock()
	call, ok := g.calls[key]
	if ok {
		delete(g.calls, key)
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	call.resp = resp
	call.err = err
	close(call.done)
}

// wait blocks until the owner completes or ctx is done.
func (c *inflightCall) wait(ctx context.Context) (*GatewayResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return c.resp, c.err
	}
}
