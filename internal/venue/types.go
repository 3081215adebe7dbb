// Package venue implements the per-venue streaming exchange adapters.
// Each venue implements the Spec capability set; the generic Adapter in
// client.go drives the CONNECTING -> STREAMING -> (ERROR|CLOSED) ->
// BACKOFF -> CONNECTING state machine identically for every venue, so the
// supervisor is polymorphic only over Spec.
package venue

import (
	"github.com/sawpanic/arbiscan/internal/model"
)

// StreamKind distinguishes the two push-protocol subscriptions a venue
// must offer per symbol.
type StreamKind int

const (
	StreamTicker StreamKind = iota
	StreamOrderbook
)

func (k StreamKind) String() string {
	if k == StreamOrderbook {
		return "orderbook"
	}
	return "ticker"
}

// Sink is the write side of the freshness cache, narrowed to just the two
// operations an adapter needs so this package does not import cache
// directly.
type Sink interface {
	PutTicker(venue model.VenueID, symbol model.Symbol, tob model.TopOfBook)
	PutOrderbook(venue model.VenueID, symbol model.Symbol, tob model.TopOfBook)
}

// Spec is the per-venue capability set: symbols(), watchTicker/watchOrderbook
// wire details, and the message normalizer. A Spec has no mutable state of
// its own; all connection state lives in the generic Adapter.
type Spec interface {
	Name() model.VenueID

	// SupportedSymbols is the venue's own tradable universe, independent of
	// what this process is configured to watch.
	SupportedSymbols() []model.Symbol

	// DialURL returns the websocket endpoint to connect to for one
	// (symbol, kind) subscription.
	DialURL(symbol model.Symbol, kind StreamKind) string

	// SubscribePayload returns the text frame to send immediately after
	// connecting to subscribe to (symbol, kind). Nil if the URL itself
	// implies the subscription (path-based streams).
	SubscribePayload(symbol model.Symbol, kind StreamKind) []byte

	// Parse normalizes one inbound message into a TopOfBook. It returns
	// ok=false for messages that are not terminal snapshots (acks,
	// heartbeats, other channels) so the caller drops them silently, and an
	// error for malformed payloads (InvalidMessage policy).
	Parse(kind StreamKind, raw []byte) (tob model.TopOfBook, ok bool, err error)
}

// State is the per-task connection state.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateError
	StateClosed
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateError:
		return "ERROR"
	case StateClosed:
		return "CLOSED"
	case StateBackoff:
		return "BACKOFF"
	default:
		return "UNKNOWN"
	}
}

// StateObserver is an optional hook tests use to assert on the sequence
// of state transitions a task goes through.
type StateObserver func(venue model.VenueID, symbol model.Symbol, kind StreamKind, state State)
