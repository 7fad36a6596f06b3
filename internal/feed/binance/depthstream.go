package binance

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/cryptomate/marketfeed/internal/feed"
)

// depthStream delivers a coherent sequence of order-book updates from a
// <symbol>@depth diff stream, seeded by a REST snapshot fetched at startup.
//
// Binance's diff frames only become meaningful once stitched onto a
// snapshot: each diff frame covers an update-ID range, and only update IDs
// past the snapshot's lastUpdateId tell you where live updates resume. So
// startup races two tasks — buffering live frames over the websocket, and
// fetching the REST snapshot — and only once the snapshot arrives does it
// know which buffered events to replay on top of it.
type depthStream struct {
	*feed.StreamBase
	session  feed.Session
	wsPath   string
	restPath string
	query    url.Values
}

func newDepthStream(session feed.Session, symbol string, onData feed.DataCallback, onError feed.ErrorCallback) *depthStream {
	s := &depthStream{
		StreamBase: feed.NewStreamBase(symbol, feed.EventKindOrderBook, onData, onError),
		session:    session,
		wsPath:     "/" + streamName(strings.ToLower(symbol), "depth"),
		restPath:   depthPath,
		query:      url.Values{"symbol": {strings.ToUpper(symbol)}, "limit": {depthLimit}},
	}
	s.SetSelf(s)
	return s
}

func (s *depthStream) Start(ctx context.Context) error {
	return s.Run(ctx, s.body)
}

type frameResult struct {
	events []feed.OrderUpdate
	err    error
}

type snapshotResult struct {
	events       []feed.OrderUpdate
	lastUpdateID uint64
	err          error
}

func (s *depthStream) body(ctx context.Context, ready func()) error {
	conn, err := s.session.DialStream(ctx, s.wsPath)
	if err != nil {
		return feed.NewConnectionError("could not connect to depth stream", err)
	}
	defer conn.Close()
	stop := feed.WatchCancel(ctx, conn)
	defer stop()

	// frameCtx/cancelFrames bounds readFrames' lifetime to this call,
	// independent of whether a caller ever invokes Close: if body returns
	// for any reason, the reader goroutine must not leak.
	frameCtx, cancelFrames := context.WithCancel(ctx)
	defer cancelFrames()
	frames := make(chan frameResult)
	go s.readFrames(frameCtx, conn, frames)

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()
	fetchDone := make(chan snapshotResult, 1)
	go s.fetchSnapshot(fetchCtx, fetchDone)

	var buffered []feed.OrderUpdate
	var snap snapshotResult

raceLoop:
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case fr, ok := <-frames:
			if !ok {
				return feed.NewConnectionError("depth stream closed before snapshot was fetched", nil)
			}
			if fr.err != nil {
				return fr.err
			}
			buffered = append(buffered, fr.events...)
		case snap = <-fetchDone:
			// Snapshot won the race: stop waiting on the fetch path and
			// merge whatever was buffered while it was in flight.
			break raceLoop
		}
	}
	if snap.err != nil {
		return snap.err
	}

	lastUpdateID := snap.lastUpdateID
	seeded := append([]feed.OrderUpdate{}, snap.events...)
	var replay []feed.OrderUpdate
	for _, ev := range buffered {
		if ev.ID > lastUpdateID {
			replay = append(replay, ev)
		}
	}
	sort.SliceStable(replay, func(i, j int) bool { return replay[i].ID < replay[j].ID })
	if len(replay) > 0 {
		seeded = append(seeded, replay...)
		lastUpdateID = replay[len(replay)-1].ID
	}

	if len(seeded) > 0 {
		s.Emit(seeded)
	}
	ready()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case fr, ok := <-frames:
			if !ok {
				return feed.NewConnectionError("depth stream closed", nil)
			}
			if fr.err != nil {
				return fr.err
			}
			var fresh []feed.OrderUpdate
			for _, ev := range fr.events {
				if ev.ID > lastUpdateID {
					fresh = append(fresh, ev)
				}
			}
			if len(fresh) > 0 {
				s.Emit(fresh)
				lastUpdateID = fresh[len(fresh)-1].ID
			}
		}
	}
}

// readFrames is the sole reader of conn for the stream's lifetime. It reads
// and decodes frames, publishing each as a frameResult on out, until ctx is
// cancelled or a read/decode fails.
func (s *depthStream) readFrames(ctx context.Context, conn feed.Conn, out chan<- frameResult) {
	defer close(out)
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- frameResult{err: feed.ClassifyReadError(err)}:
			case <-ctx.Done():
			}
			return
		}
		events, err := decodeDepthUpdate(raw)
		select {
		case out <- frameResult{events: events, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *depthStream) fetchSnapshot(ctx context.Context, out chan<- snapshotResult) {
	raw, err := s.session.Get(ctx, s.restPath, s.query)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		out <- snapshotResult{err: feed.NewConnectionError("could not fetch depth snapshot", err)}
		return
	}
	events, lastUpdateID, err := decodeDepthSnapshot(raw)
	if err != nil {
		out <- snapshotResult{err: err}
		return
	}
	out <- snapshotResult{events: events, lastUpdateID: lastUpdateID}
}
