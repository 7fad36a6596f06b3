package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeStream is a hand-rolled Stream the multiplexer tests drive directly,
// without going through a real websocket or venue codec.
type fakeStream struct {
	symbol string
	kind   EventKind

	startErr error

	closeCh  chan struct{}
	closed   chan struct{}
	closeOnce sync.Once
}

func newFakeStream(symbol string, kind EventKind, startErr error) *fakeStream {
	return &fakeStream{
		symbol:   symbol,
		kind:     kind,
		startErr: startErr,
		closeCh:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

func (f *fakeStream) Start(ctx context.Context) error {
	if f.startErr != nil {
		close(f.closed)
		return f.startErr
	}
	go func() {
		<-f.closeCh
		close(f.closed)
	}()
	return nil
}

func (f *fakeStream) Close() {
	f.closeOnce.Do(func() { close(f.closeCh) })
}

func (f *fakeStream) WaitClosed() { <-f.closed }
func (f *fakeStream) Symbol() string  { return f.symbol }
func (f *fakeStream) Kind() EventKind { return f.kind }

type fakeVenue struct {
	mu      sync.Mutex
	streams map[Key]*fakeStream
	failNext bool
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{streams: make(map[Key]*fakeStream)}
}

func (v *fakeVenue) NewStream(session Session, symbol string, kind EventKind, onData DataCallback, onError ErrorCallback) Stream {
	v.mu.Lock()
	defer v.mu.Unlock()
	var startErr error
	if v.failNext {
		startErr = NewConnectionError("boom", nil)
		v.failNext = false
	}
	s := newFakeStream(symbol, kind, startErr)
	v.streams[Key{Symbol: symbol, Kind: kind}] = s
	return s
}

func TestMultiplexerEnableDisable(t *testing.T) {
	venue := newFakeVenue()
	var dataCalls int
	mux := NewMultiplexer(venue, nil, false,
		func(m *Multiplexer, symbol string, kind EventKind, data any) { dataCalls++ },
		func(m *Multiplexer, symbol string, kind EventKind, err *Error, message string, retry int) {},
		zerolog.Nop())

	if err := mux.Enable(context.Background(), "btcusdt", EventKindTick); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	mux.mu.Lock()
	_, exists := mux.streams[Key{Symbol: "btcusdt", Kind: EventKindTick}]
	mux.mu.Unlock()
	if !exists {
		t.Fatal("stream not registered after successful Enable")
	}

	mux.Disable("btcusdt", EventKindTick)

	mux.mu.Lock()
	_, stillExists := mux.streams[Key{Symbol: "btcusdt", Kind: EventKindTick}]
	mux.mu.Unlock()
	if stillExists {
		t.Fatal("stream still registered after Disable")
	}
}

func TestMultiplexerEnableFailureRollsBack(t *testing.T) {
	venue := newFakeVenue()
	venue.failNext = true
	mux := NewMultiplexer(venue, nil, false,
		func(m *Multiplexer, symbol string, kind EventKind, data any) {
			t.Errorf("unexpected data callback")
		},
		func(m *Multiplexer, symbol string, kind EventKind, err *Error, message string, retry int) {
			t.Errorf("unexpected error callback: %v", err)
		},
		zerolog.Nop())

	err := mux.Enable(context.Background(), "ethusdt", EventKindTick)
	if err == nil {
		t.Fatal("expected Enable to return an error")
	}

	mux.mu.Lock()
	_, exists := mux.streams[Key{Symbol: "ethusdt", Kind: EventKindTick}]
	mux.mu.Unlock()
	if exists {
		t.Fatal("failed stream left registered")
	}
}

func TestMultiplexerCloseIdempotent(t *testing.T) {
	venue := newFakeVenue()
	mux := NewMultiplexer(venue, nil, false,
		func(m *Multiplexer, symbol string, kind EventKind, data any) {},
		func(m *Multiplexer, symbol string, kind EventKind, err *Error, message string, retry int) {},
		zerolog.Nop())

	if err := mux.Enable(context.Background(), "btcusdt", EventKindTick); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		mux.Close()
		mux.Close()
		mux.WaitClosed()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close/Close/WaitClosed did not complete")
	}
}

func TestMultiplexerRoutesErrorAndRemovesStream(t *testing.T) {
	venue := newFakeVenue()
	errCh := make(chan *Error, 1)
	mux := NewMultiplexer(venue, nil, false,
		func(m *Multiplexer, symbol string, kind EventKind, data any) {},
		func(m *Multiplexer, symbol string, kind EventKind, err *Error, message string, retry int) {
			errCh <- err
		},
		zerolog.Nop())

	if err := mux.Enable(context.Background(), "btcusdt", EventKindTick); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	venue.mu.Lock()
	stream := venue.streams[Key{Symbol: "btcusdt", Kind: EventKindTick}]
	venue.mu.Unlock()

	mux.handleError(stream, NewConnectionError("peer reset", nil), "tick stream")

	select {
	case err := <-errCh:
		if err.Kind != KindConnection {
			t.Errorf("Kind = %v, want KindConnection", err.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error callback")
	}

	mux.mu.Lock()
	_, exists := mux.streams[Key{Symbol: "btcusdt", Kind: EventKindTick}]
	mux.mu.Unlock()
	if exists {
		t.Fatal("stream still registered after handleError")
	}
}
