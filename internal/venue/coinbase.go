package venue

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/model"
)

// coinbaseSpec normalizes Coinbase Exchange's "ticker" and "level2" feed
// channels, which use a type-tagged JSON object envelope rather than
// Kraken's array framing or Binance's path-based streams — exercising a
// third distinct wire shape through the same Spec capability set.
type coinbaseSpec struct {
	universe []model.Symbol
}

func NewCoinbaseSpec(universe []model.Symbol) Spec {
	return &coinbaseSpec{universe: universe}
}

func (c *coinbaseSpec) Name() model.VenueID { return "coinbase" }

func (c *coinbaseSpec) SupportedSymbols() []model.Symbol { return c.universe }

func (c *coinbaseSpec) productID(symbol model.Symbol) string {
	base, quote := symbol.Split()
	return base + "-" + quote
}

func (c *coinbaseSpec) DialURL(model.Symbol, StreamKind) string {
	return "wss://ws-feed.exchange.coinbase.com"
}

func (c *coinbaseSpec) SubscribePayload(symbol model.Symbol, kind StreamKind) []byte {
	channel := "ticker"
	if kind == StreamOrderbook {
		channel = "level2"
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"type":        "subscribe",
		"product_ids": []string{c.productID(symbol)},
		"channels":    []string{channel},
	})
	return payload
}

type coinbaseEnvelope struct {
	Type    string     `json:"type"`
	BestBid string     `json:"best_bid"`
	BestAsk string     `json:"best_ask"`
	Bids    [][]string `json:"bids"`
	Asks    [][]string `json:"asks"`
}

func (c *coinbaseSpec) Parse(kind StreamKind, raw []byte) (model.TopOfBook, bool, error) {
	var env coinbaseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.TopOfBook{}, false, err
	}

	switch env.Type {
	case "ticker":
		if env.BestBid == "" || env.BestAsk == "" {
			return model.TopOfBook{}, false, nil
		}
		bid, err := decimal.NewFromString(env.BestBid)
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		ask, err := decimal.NewFromString(env.BestAsk)
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		return model.TopOfBook{Bid: bid, Ask: ask}, true, nil
	case "snapshot":
		if len(env.Bids) == 0 || len(env.Asks) == 0 {
			return model.TopOfBook{}, false, nil
		}
		if len(env.Bids[0]) < 2 || len(env.Asks[0]) < 2 {
			return model.TopOfBook{}, false, fmt.Errorf("coinbase snapshot: malformed level")
		}
		bid, bidVol, err := parseLevel([2]string{env.Bids[0][0], env.Bids[0][1]})
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		ask, askVol, err := parseLevel([2]string{env.Asks[0][0], env.Asks[0][1]})
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		return model.TopOfBook{Bid: bid, BidVolume: bidVol, Ask: ask, AskVolume: askVol}, true, nil
	default:
		// l2update, subscriptions ack, heartbeat: not a terminal snapshot.
		return model.TopOfBook{}, false, nil
	}
}
