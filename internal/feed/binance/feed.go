package binance

import (
	"github.com/rs/zerolog"

	"github.com/cryptomate/marketfeed/internal/feed"
)

// Name is the venue string this package registers itself under.
const Name = "binance"

func init() {
	feed.Register(Name, func() feed.Venue { return &Venue{} })
}

// Venue constructs binance's tick and depth streams.
type Venue struct{}

var _ feed.Venue = (*Venue)(nil)

// NewSession builds the HTTP/websocket client this venue's streams expect.
func NewSession(logger zerolog.Logger) *feed.HTTPSession {
	return feed.NewHTTPSession(wsBaseURL, restBaseURL, logger)
}

func (v *Venue) NewStream(session feed.Session, symbol string, kind feed.EventKind, onData feed.DataCallback, onError feed.ErrorCallback) feed.Stream {
	switch kind {
	case feed.EventKindOrderBook:
		return newDepthStream(session, symbol, onData, onError)
	default:
		return newTickStream(session, symbol, onData, onError)
	}
}
