package binance

import (
	"context"
	"strings"

	"github.com/cryptomate/marketfeed/internal/feed"
)

// tickStream delivers decoded trades from a raw <symbol>@trade stream.
type tickStream struct {
	*feed.StreamBase
	session feed.Session
	path    string
}

func newTickStream(session feed.Session, symbol string, onData feed.DataCallback, onError feed.ErrorCallback) *tickStream {
	s := &tickStream{
		StreamBase: feed.NewStreamBase(symbol, feed.EventKindTick, onData, onError),
		session:    session,
		path:       "/" + streamName(strings.ToLower(symbol), "trade"),
	}
	s.SetSelf(s)
	return s
}

func (s *tickStream) Start(ctx context.Context) error {
	return s.Run(ctx, s.body)
}

func (s *tickStream) body(ctx context.Context, ready func()) error {
	conn, err := s.session.DialStream(ctx, s.path)
	if err != nil {
		return feed.NewConnectionError("could not connect to trade stream", err)
	}
	defer conn.Close()
	stop := feed.WatchCancel(ctx, conn)
	defer stop()

	ready()

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return feed.ClassifyReadError(err)
		}
		tick, err := decodeTrade(raw)
		if err != nil {
			return err
		}
		s.Emit(tick)
	}
}
