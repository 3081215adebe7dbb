package venue

import (
	"fmt"

	"github.com/sawpanic/arbiscan/internal/model"
)

// NewSpec builds the Spec for a configured venue id. Supported-universe
// lists are illustrative top-volume pairs per venue; a production
// deployment would source these from each venue's instruments/exchangeInfo
// REST endpoint at startup instead of a static list.
func NewSpec(venue model.VenueID, universe []model.Symbol) (Spec, error) {
	switch venue {
	case "binance":
		return NewBinanceSpec(universe), nil
	case "kraken":
		return NewKrakenSpec(universe), nil
	case "coinbase":
		return NewCoinbaseSpec(universe), nil
	case "okx":
		return NewOKXSpec(universe), nil
	case "bybit":
		return NewBybitSpec(universe), nil
	case "mexc":
		return NewMexcSpec(universe), nil
	default:
		return nil, fmt.Errorf("venue: no Spec registered for %q", venue)
	}
}
