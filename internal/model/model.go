// Package model holds the data types shared across the ingestion, cache,
// commission, and finder packages. Monetary fields are shopspring/decimal
// values; nothing in this package touches IEEE-754 floats.
package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side identifies which leg of a commission lookup or cycle edge applies.
type Side string

const (
	SideTakerBuy   Side = "taker_buy"
	SideTakerSell  Side = "taker_sell"
	SideTakerOrder Side = "taker_order"
)

// LegSide labels a cyclic-arbitrage leg's direction for the wire format.
type LegSide string

const (
	LegBuy  LegSide = "buy"
	LegSell LegSide = "sell"
)

// Symbol is the canonical BASE/QUOTE pair representation, always uppercase.
type Symbol string

// NewSymbol normalizes a base/quote pair into canonical form.
func NewSymbol(base, quote string) Symbol {
	return Symbol(strings.ToUpper(base) + "/" + strings.ToUpper(quote))
}

// Split returns the base and quote legs of the symbol.
func (s Symbol) Split() (base, quote string) {
	parts := strings.SplitN(string(s), "/", 2)
	if len(parts) != 2 {
		return string(s), ""
	}
	return parts[0], parts[1]
}

// VenueID is a lowercase short venue identifier, e.g. "binance".
type VenueID string

// TopOfBook is the best bid/ask snapshot for one (venue, symbol) pair.
type TopOfBook struct {
	Venue      VenueID
	Symbol     Symbol
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	BidVolume  decimal.Decimal
	AskVolume  decimal.Decimal
	TimestampMs int64
}

// Valid reports whether the snapshot satisfies the cache's acceptance
// invariant: both bid and ask strictly positive.
func (t TopOfBook) Valid() bool {
	return t.Bid.IsPositive() && t.Ask.IsPositive()
}

// OpportunitySpatial is a two-venue arbitrage candidate.
type OpportunitySpatial struct {
	Pair          Symbol
	BuyVenue      VenueID
	SellVenue     VenueID
	BuyPrice      decimal.Decimal
	SellPrice     decimal.Decimal
	ProfitPercent decimal.Decimal
	VolumeUsd     *decimal.Decimal
}

// CyclicLeg describes one conversion step of a closed currency cycle.
type CyclicLeg struct {
	Venue  VenueID
	Pair   Symbol
	Side   LegSide
}

// OpportunityCyclic is a closed-cycle arbitrage candidate, 3-8 legs.
type OpportunityCyclic struct {
	Legs          []CyclicLeg
	ProfitPercent decimal.Decimal
	VolumeUsd     *decimal.Decimal
}
