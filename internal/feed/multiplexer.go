package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MuxDataCallback delivers a decoded payload from one of a Multiplexer's
// streams. data is a *Tick for a tick stream, or []OrderUpdate for a depth
// stream.
type MuxDataCallback func(mux *Multiplexer, symbol string, kind EventKind, data any)

// MuxErrorCallback is invoked at most once per stream lifetime, after the
// stream has already torn itself down and been removed from the
// multiplexer's registry. retry is reserved for a future retry policy and
// is currently always zero.
type MuxErrorCallback func(mux *Multiplexer, symbol string, kind EventKind, err *Error, message string, retry int)

// Multiplexer owns a set of per-(symbol, kind) streams toward a single
// venue and fans their decoded events and failures into one callback pair.
type Multiplexer struct {
	venue       Venue
	session     Session
	ownsSession bool
	callback    MuxDataCallback
	onError     MuxErrorCallback
	logger      zerolog.Logger

	mu        sync.Mutex
	streams   map[Key]Stream
	closing   []Stream
	closeOnce sync.Once
	closeDone chan struct{}
}

func NewMultiplexer(venue Venue, session Session, ownsSession bool, callback MuxDataCallback, onError MuxErrorCallback, logger zerolog.Logger) *Multiplexer {
	return &Multiplexer{
		venue:       venue,
		session:     session,
		ownsSession: ownsSession,
		callback:    callback,
		onError:     onError,
		logger:      logger,
		streams:     make(map[Key]Stream),
	}
}

// Enable constructs the stream for (symbol, kind), registers it, and then
// starts it. If startup fails, the registration is rolled back before the
// error is returned; a concurrent Disable racing the same key may have
// already removed it, which is not an error.
func (m *Multiplexer) Enable(ctx context.Context, symbol string, kind EventKind) error {
	key := Key{Symbol: symbol, Kind: kind}

	m.mu.Lock()
	if m.closeDone != nil {
		m.mu.Unlock()
		return fmt.Errorf("feed: enable called on a closed multiplexer")
	}
	if _, exists := m.streams[key]; exists {
		m.mu.Unlock()
		return fmt.Errorf("feed: stream %s is already enabled", key)
	}
	stream := m.venue.NewStream(m.session, symbol, kind, m.handleData, m.handleError)
	m.streams[key] = stream
	m.mu.Unlock()

	if err := stream.Start(ctx); err != nil {
		m.mu.Lock()
		if cur, ok := m.streams[key]; ok && cur == stream {
			delete(m.streams, key)
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// Disable closes and waits out the stream for (symbol, kind). It is a no-op
// if no such stream is enabled.
func (m *Multiplexer) Disable(symbol string, kind EventKind) {
	key := Key{Symbol: symbol, Kind: kind}

	m.mu.Lock()
	stream, ok := m.streams[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.streams, key)
	m.closing = append(m.closing, stream)
	m.mu.Unlock()

	stream.Close()
	stream.WaitClosed()

	m.mu.Lock()
	m.removeClosing(stream)
	m.mu.Unlock()
}

func (m *Multiplexer) removeClosing(stream Stream) {
	for i, s := range m.closing {
		if s == stream {
			m.closing = append(m.closing[:i], m.closing[i+1:]...)
			return
		}
	}
}

// Close is idempotent: the first call spawns a one-shot shutdown that
// closes every live and already-closing stream, awaits them all in
// parallel, then closes the session iff the multiplexer owns it.
// Subsequent calls are no-ops; WaitClosed still observes the original
// shutdown.
func (m *Multiplexer) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		done := make(chan struct{})
		m.closeDone = done
		toWait := append([]Stream{}, m.closing...)
		for _, s := range m.streams {
			s.Close()
			toWait = append(toWait, s)
		}
		m.streams = make(map[Key]Stream)
		m.mu.Unlock()

		go func() {
			defer close(done)
			var grp errgroup.Group
			for _, s := range toWait {
				s := s
				grp.Go(func() error {
					s.WaitClosed()
					return nil
				})
			}
			grp.Wait()
			if m.ownsSession {
				if err := m.session.Close(); err != nil {
					m.logger.Error().Err(err).Msg("closing multiplexer session")
				}
			}
		}()
	})
}

// WaitClosed blocks until the shutdown spawned by Close has fully
// completed. It returns immediately if Close has never been called.
func (m *Multiplexer) WaitClosed() {
	m.mu.Lock()
	done := m.closeDone
	m.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}

func (m *Multiplexer) handleData(s Stream, data any) {
	m.callback(m, s.Symbol(), s.Kind(), data)
}

func (m *Multiplexer) handleError(s Stream, err *Error, context string) {
	key := Key{Symbol: s.Symbol(), Kind: s.Kind()}
	m.logger.Error().
		Str("context", context).
		Str("symbol", key.Symbol).
		Stringer("kind", key.Kind).
		Err(err).
		Msg("stream failed")

	m.mu.Lock()
	if cur, ok := m.streams[key]; ok && cur == s {
		delete(m.streams, key)
	}
	m.mu.Unlock()

	m.onError(m, key.Symbol, key.Kind, err, err.Error(), 0)
}
