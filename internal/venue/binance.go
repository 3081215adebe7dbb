package venue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/model"
)

// binanceSpec normalizes Binance's combined-stream bookTicker (best
// bid/ask) and partial-depth (depth5) channels.
type binanceSpec struct {
	universe []model.Symbol
}

// NewBinanceSpec builds the Binance Spec over the given tradable universe.
func NewBinanceSpec(universe []model.Symbol) Spec {
	return &binanceSpec{universe: universe}
}

func (b *binanceSpec) Name() model.VenueID { return "binance" }

func (b *binanceSpec) SupportedSymbols() []model.Symbol { return b.universe }

func (b *binanceSpec) streamName(symbol model.Symbol, kind StreamKind) string {
	base, quote := symbol.Split()
	pair := strings.ToLower(base + quote)
	if kind == StreamOrderbook {
		return pair + "@depth5@100ms"
	}
	return pair + "@bookTicker"
}

func (b *binanceSpec) DialURL(symbol model.Symbol, kind StreamKind) string {
	return fmt.Sprintf("wss://stream.binance.com:9443/ws/%s", b.streamName(symbol, kind))
}

func (b *binanceSpec) SubscribePayload(model.Symbol, StreamKind) []byte {
	return nil // path-based stream, no subscribe frame needed
}

type binanceBookTicker struct {
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type binanceDepth struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func (b *binanceSpec) Parse(kind StreamKind, raw []byte) (model.TopOfBook, bool, error) {
	if kind == StreamOrderbook {
		var d binanceDepth
		if err := json.Unmarshal(raw, &d); err != nil {
			return model.TopOfBook{}, false, err
		}
		if len(d.Bids) == 0 || len(d.Asks) == 0 {
			return model.TopOfBook{}, false, nil
		}
		bid, bidVol, err := parseLevel(d.Bids[0])
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		ask, askVol, err := parseLevel(d.Asks[0])
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		return model.TopOfBook{Bid: bid, BidVolume: bidVol, Ask: ask, AskVolume: askVol}, true, nil
	}

	var t binanceBookTicker
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.TopOfBook{}, false, err
	}
	if t.BidPrice == "" && t.AskPrice == "" {
		return model.TopOfBook{}, false, nil
	}
	bid, err := decimal.NewFromString(t.BidPrice)
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	ask, err := decimal.NewFromString(t.AskPrice)
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	return model.TopOfBook{Bid: bid, Ask: ask}, true, nil
}

func parseLevel(level [2]string) (price, volume decimal.Decimal, err error) {
	price, err = decimal.NewFromString(level[0])
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	volume, err = decimal.NewFromString(level[1])
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return price, volume, nil
}
