package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// heartbeatInterval bounds how long a stream will wait for a server frame
// (data or ping) before treating the connection as dead.
const heartbeatInterval = 60 * time.Second

// Conn is one live websocket connection backing a single stream.
type Conn interface {
	// ReadMessage blocks for the next frame. It returns an error wrapping
	// *websocket.CloseError on a clean peer close, or any other transport
	// error on a lower-level failure.
	ReadMessage() ([]byte, error)
	Close() error
}

// Session is the shared HTTP/websocket client a stream rides on. A stream
// never assumes ownership of a Session passed to it; see ownsSession in
// Multiplexer.
type Session interface {
	DialStream(ctx context.Context, path string) (Conn, error)
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
	Close() error
}

// HTTPSession is the platform Session: a gorilla/websocket dialer paired
// with a net/http client, both rooted at venue-supplied base URLs. TLS and
// DNS resolution are left to these standard clients.
type HTTPSession struct {
	wsBaseURL   string
	restBaseURL string
	httpClient  *http.Client
	dialer      *websocket.Dialer
	logger      zerolog.Logger
}

func NewHTTPSession(wsBaseURL, restBaseURL string, logger zerolog.Logger) *HTTPSession {
	return &HTTPSession{
		wsBaseURL:   wsBaseURL,
		restBaseURL: restBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		dialer:      websocket.DefaultDialer,
		logger:      logger,
	}
}

func (s *HTTPSession) DialStream(ctx context.Context, path string) (Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.wsBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Now().Add(heartbeatInterval))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(heartbeatInterval))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})
	return &wsConn{conn: conn}, nil
}

func (s *HTTPSession) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	reqID := uuid.New().String()
	full := s.restBaseURL + path
	if len(query) > 0 {
		full = fmt.Sprintf("%s?%s", full, query.Encode())
	}
	s.logger.Debug().Str("request_id", reqID).Str("url", full).Msg("feed rest request")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug().Str("request_id", reqID).Err(err).Msg("feed rest request failed")
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Close is a no-op: the dialer and http.Client hold no resources worth
// releasing eagerly. It exists so HTTPSession satisfies Session for
// ownership bookkeeping in the Multiplexer.
func (s *HTTPSession) Close() error {
	return nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		c.conn.SetReadDeadline(time.Now().Add(heartbeatInterval))
	}
	return data, err
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// WatchCancel closes conn as soon as ctx is done, which is how a blocking
// Conn.ReadMessage is made cancellation-safe. The returned stop func must
// be called once the caller no longer needs cancellation watched, to avoid
// leaking the watcher goroutine.
func WatchCancel(ctx context.Context, conn Conn) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopCh:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
	}
}

// ClassifyReadError turns a raw Conn.ReadMessage error into the
// connection-error taxonomy stream bodies report through the error path.
func ClassifyReadError(err error) *Error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		return NewConnectionError("connection closed", err)
	}
	return NewConnectionError("websocket read failed", err)
}
