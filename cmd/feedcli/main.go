// Command feedcli streams normalized trade or order-book updates for a
// single symbol from a venue and logs each decoded event to stdout.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/cryptomate/marketfeed/internal/feed"
	"github.com/cryptomate/marketfeed/internal/feed/binance"
	"github.com/cryptomate/marketfeed/pkg/logger"
	"github.com/cryptomate/marketfeed/pkg/shutdown"
)

func runFeed(venueName, symbol, dataType string) {
	logger.Log.Info().
		Str("venue", venueName).
		Str("symbol", symbol).
		Str("dataType", dataType).
		Msg("feedcli starting")

	kind, err := parseDataType(dataType)
	if err != nil {
		logger.Log.Error().Err(err).Msg("invalid data type")
		os.Exit(1)
	}

	venue, err := feed.New(feed.Description{Venue: venueName, Symbol: symbol})
	if err != nil {
		logger.Log.Error().Err(err).Msg("could not resolve venue")
		os.Exit(1)
	}

	session := binance.NewSession(logger.Log)
	sd := shutdown.NewShutdown(logger.Log)

	mux := feed.NewMultiplexer(venue, session, true, handleData, handleError, logger.Log)
	sd.HookShutdownCallback("close feed multiplexer", func() {
		mux.Close()
		mux.WaitClosed()
	}, 10*time.Second)

	if err := mux.Enable(sd.Context(), symbol, kind); err != nil {
		logger.Log.Error().Err(err).Msg("failed to enable stream")
		os.Exit(1)
	}

	sd.WaitForShutdown(syscall.SIGINT, syscall.SIGTERM)
	logger.Log.Info().Msg("feedcli stopped")
}

func handleData(mux *feed.Multiplexer, symbol string, kind feed.EventKind, data any) {
	switch v := data.(type) {
	case *feed.Tick:
		logger.Log.Info().
			Str("symbol", symbol).
			Uint64("id", v.ID).
			Str("side", v.Side.String()).
			Str("price", v.Price.String()).
			Str("amount", v.Amount.String()).
			Msg("tick")
	case []feed.OrderUpdate:
		logger.Log.Info().
			Str("symbol", symbol).
			Int("updates", len(v)).
			Msg("orderbook batch")
	default:
		logger.Log.Warn().Str("symbol", symbol).Stringer("kind", kind).Msg("unrecognized payload")
	}
}

func handleError(mux *feed.Multiplexer, symbol string, kind feed.EventKind, err *feed.Error, message string, retry int) {
	logger.Log.Error().
		Str("symbol", symbol).
		Stringer("kind", kind).
		Str("message", message).
		Int("retry", retry).
		Msg("stream error")
}

func parseDataType(s string) (feed.EventKind, error) {
	switch strings.ToLower(s) {
	case "trade", "tick":
		return feed.EventKindTick, nil
	case "depth", "orderbook":
		return feed.EventKindOrderBook, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `feedcli streams normalized market data from a venue.

Usage:
  feedcli <venue> <symbol> <data-type>

Examples:
  feedcli binance btcusdt trade
  feedcli binance btcusdt depth
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger.InitLogger(true)

	args := flag.Args()
	if len(args) != 3 {
		logger.Log.Error().Msg("exactly 3 arguments required: <venue> <symbol> <data-type>")
		flag.Usage()
		os.Exit(1)
	}

	runFeed(args[0], args[1], args[2])
}
