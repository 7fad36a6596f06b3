// Package binance implements the feed.Venue contract against Binance's spot
// websocket streams and REST depth snapshot endpoint.
package binance

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cryptomate/marketfeed/internal/feed"
)

const (
	wsBaseURL   = "wss://stream.binance.com:9443/ws"
	restBaseURL = "https://www.binance.com"
	depthPath   = "/api/v1/depth"
	depthLimit  = "1000"
)

// tradeFrame is the wire shape of a raw trade stream frame
// (<symbol>@trade).
type tradeFrame struct {
	TradeID   uint64          `json:"t"`
	EventTime uint64          `json:"E"`
	Price     string          `json:"p"`
	Quantity  string          `json:"q"`
	IsBuyerMM bool            `json:"m"`
}

// depthUpdateFrame is the wire shape of a diff depth stream frame
// (<symbol>@depth).
type depthUpdateFrame struct {
	FirstUpdateID uint64     `json:"U"`
	EventTime     uint64     `json:"E"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// depthSnapshot is the wire shape of the REST /api/v1/depth response.
type depthSnapshot struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
	Code         int        `json:"code"`
	Msg          string     `json:"msg"`
}

// decodeTrade parses a raw trade frame into a normalized feed.Tick. The
// taker side is buy when the buyer is not the market maker.
func decodeTrade(raw []byte) (*feed.Tick, error) {
	var f tradeFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, feed.NewPayloadError("invalid trade frame", err)
	}
	price, err := decimal.NewFromString(f.Price)
	if err != nil {
		return nil, feed.NewPayloadError("invalid trade price", err)
	}
	amount, err := decimal.NewFromString(f.Quantity)
	if err != nil {
		return nil, feed.NewPayloadError("invalid trade quantity", err)
	}
	side := feed.SideBuy
	if f.IsBuyerMM {
		side = feed.SideSell
	}
	return &feed.Tick{
		ID:        f.TradeID,
		Timestamp: f.EventTime,
		Side:      side,
		Amount:    amount,
		Price:     price,
	}, nil
}

// decodeDepthUpdate parses a raw diff depth frame into OrderUpdate events,
// numbering them sequentially starting at the frame's FirstUpdateID so every
// level carries a distinct, monotonically increasing ID within the frame.
func decodeDepthUpdate(raw []byte) ([]feed.OrderUpdate, error) {
	var f depthUpdateFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, feed.NewPayloadError("invalid depth update frame", err)
	}
	id := f.FirstUpdateID
	ts := f.EventTime
	events := make([]feed.OrderUpdate, 0, len(f.Bids)+len(f.Asks))
	for _, lvl := range f.Bids {
		u, err := decodeLevel(lvl, id, &ts, feed.SideBuy)
		if err != nil {
			return nil, err
		}
		events = append(events, u)
		id++
	}
	for _, lvl := range f.Asks {
		u, err := decodeLevel(lvl, id, &ts, feed.SideSell)
		if err != nil {
			return nil, err
		}
		events = append(events, u)
		id++
	}
	return events, nil
}

// decodeDepthSnapshot parses a REST depth snapshot into OrderUpdate events
// (every level stamped with lastUpdateId as its ID and a nil Timestamp,
// since a snapshot carries no per-level event time) and returns the
// snapshot's lastUpdateId as the cutover point for merging buffered live
// updates.
func decodeDepthSnapshot(raw []byte) ([]feed.OrderUpdate, uint64, error) {
	var s depthSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, 0, feed.NewPayloadError("invalid depth snapshot", err)
	}
	if s.Code != 0 {
		return nil, 0, feed.NewRemoteError(s.Code, s.Msg)
	}
	events := make([]feed.OrderUpdate, 0, len(s.Bids)+len(s.Asks))
	for _, lvl := range s.Bids {
		u, err := decodeLevel(lvl, s.LastUpdateID, nil, feed.SideBuy)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, u)
	}
	for _, lvl := range s.Asks {
		u, err := decodeLevel(lvl, s.LastUpdateID, nil, feed.SideSell)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, u)
	}
	return events, s.LastUpdateID, nil
}

func decodeLevel(lvl []string, id uint64, ts *uint64, side feed.Side) (feed.OrderUpdate, error) {
	if len(lvl) < 2 {
		return feed.OrderUpdate{}, feed.NewPayloadError(fmt.Sprintf("malformed price level: %v", lvl), nil)
	}
	price, err := decimal.NewFromString(lvl[0])
	if err != nil {
		return feed.OrderUpdate{}, feed.NewPayloadError("invalid level price", err)
	}
	amount, err := decimal.NewFromString(lvl[1])
	if err != nil {
		return feed.OrderUpdate{}, feed.NewPayloadError("invalid level amount", err)
	}
	return feed.OrderUpdate{
		ID:        id,
		Timestamp: ts,
		Side:      side,
		Amount:    amount,
		Price:     price,
	}, nil
}

func streamName(symbol, suffix string) string {
	return fmt.Sprintf("%s@%s", symbol, suffix)
}
