package binance

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/cryptomate/marketfeed/internal/feed"
)

// mockConn is a feed.Conn whose frames are fed in by a test over inbox and
// whose Close is observable.
type mockConn struct {
	inbox chan []byte

	mu     sync.Mutex
	closed bool
}

func newMockConn() *mockConn {
	// Unbuffered: send blocks until ReadMessage has taken the frame, which
	// lets tests sequence frame delivery relative to other events.
	return &mockConn{inbox: make(chan []byte)}
}

func (c *mockConn) send(raw []byte) {
	c.inbox <- raw
}

func (c *mockConn) ReadMessage() ([]byte, error) {
	raw, ok := <-c.inbox
	if !ok {
		return nil, errors.New("mock connection closed")
	}
	return raw, nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.inbox)
	return nil
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// mockSession is a feed.Session that hands out a single pre-built mockConn
// and serves REST GETs from a caller-controlled channel, so tests can
// sequence the snapshot race deterministically.
type mockSession struct {
	conn *mockConn

	getRequested chan struct{}
	getResponse  chan getResult
}

type getResult struct {
	body []byte
	err  error
}

func newMockSession(conn *mockConn) *mockSession {
	return &mockSession{
		conn:         conn,
		getRequested: make(chan struct{}, 1),
		getResponse:  make(chan getResult, 1),
	}
}

func (s *mockSession) DialStream(ctx context.Context, path string) (feed.Conn, error) {
	return s.conn, nil
}

func (s *mockSession) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	select {
	case s.getRequested <- struct{}{}:
	default:
	}
	select {
	case res := <-s.getResponse:
		return res.body, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *mockSession) Close() error { return nil }

func (s *mockSession) respondSnapshot(body []byte) {
	s.getResponse <- getResult{body: body}
}
