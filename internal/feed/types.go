// Package feed implements the venue-agnostic core of the market-data
// ingestion pipeline: normalized records, the stream lifecycle contract,
// and the multiplexer that fans per-symbol streams into user callbacks.
package feed

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the taker side of a trade, or the book side of an order-update
// price level.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// Tick is a single completed trade, normalized from the venue's wire frame.
type Tick struct {
	ID        uint64
	Timestamp uint64
	Side      Side
	Amount    decimal.Decimal
	Price     decimal.Decimal
}

// OrderUpdate is a single change to an order-book price level. A zero
// Amount means the level should be removed. Timestamp is nil for updates
// synthesized from a REST snapshot, since a snapshot carries no per-level
// event time.
type OrderUpdate struct {
	ID        uint64
	Timestamp *uint64
	Side      Side
	Amount    decimal.Decimal
	Price     decimal.Decimal
}

// EventKind discriminates the two stream flavors a venue can serve for a
// symbol.
type EventKind int

const (
	EventKindTick EventKind = iota
	EventKindOrderBook
)

func (k EventKind) String() string {
	switch k {
	case EventKindTick:
		return "tick"
	case EventKindOrderBook:
		return "orderbook"
	default:
		return "unknown"
	}
}

// Description identifies a subscription a caller wants served. Period is
// reserved for venues/streams keyed by a candle interval; it is unused by
// the trade and depth streams this core implements.
type Description struct {
	Venue  string `validate:"required"`
	Symbol string `validate:"required"`
	Period *uint32
}

// Key is the unique identity of a live stream inside a Multiplexer: at most
// one stream exists per (Symbol, Kind) pair at a time.
type Key struct {
	Symbol string
	Kind   EventKind
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Symbol, k.Kind)
}

// DataCallback delivers one decoded payload from a stream. data is a *Tick
// for a tick stream, or a []OrderUpdate for a depth stream.
type DataCallback func(s Stream, data any)

// ErrorCallback is invoked at most once per stream lifetime, after the
// stream has already torn itself down.
type ErrorCallback func(s Stream, err *Error, context string)
