package venue

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/model"
)

// bybitSpec normalizes Bybit's v5 public spot feed: the "tickers" channel
// for best bid/ask and the depth-1 "orderbook" channel for the sized top of
// book. Both arrive on one endpoint with topic-tagged envelopes.
type bybitSpec struct {
	universe []model.Symbol
}

func NewBybitSpec(universe []model.Symbol) Spec {
	return &bybitSpec{universe: universe}
}

func (b *bybitSpec) Name() model.VenueID { return "bybit" }

func (b *bybitSpec) SupportedSymbols() []model.Symbol { return b.universe }

func (b *bybitSpec) instrument(symbol model.Symbol) string {
	base, quote := symbol.Split()
	return base + quote
}

func (b *bybitSpec) DialURL(model.Symbol, StreamKind) string {
	return "wss://stream.bybit.com/v5/public/spot"
}

func (b *bybitSpec) SubscribePayload(symbol model.Symbol, kind StreamKind) []byte {
	topic := "tickers." + b.instrument(symbol)
	if kind == StreamOrderbook {
		topic = "orderbook.1." + b.instrument(symbol)
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"op":   "subscribe",
		"args": []string{topic},
	})
	return payload
}

type bybitTickerData struct {
	Bid1Price string `json:"bid1Price"`
	Bid1Size  string `json:"bid1Size"`
	Ask1Price string `json:"ask1Price"`
	Ask1Size  string `json:"ask1Size"`
}

type bybitBookData struct {
	Bids [][]string `json:"b"`
	Asks [][]string `json:"a"`
}

type bybitEnvelope struct {
	Topic string          `json:"topic"`
	Op    string          `json:"op"`
	Data  json.RawMessage `json:"data"`
}

func (b *bybitSpec) Parse(kind StreamKind, raw []byte) (model.TopOfBook, bool, error) {
	var env bybitEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.TopOfBook{}, false, err
	}
	if env.Op != "" || len(env.Data) == 0 {
		return model.TopOfBook{}, false, nil // subscribe ack or pong
	}

	if kind == StreamOrderbook {
		if !strings.HasPrefix(env.Topic, "orderbook.") {
			return model.TopOfBook{}, false, nil
		}
		var book bybitBookData
		if err := json.Unmarshal(env.Data, &book); err != nil {
			return model.TopOfBook{}, false, err
		}
		// Delta frames may carry only one side; without both there is no
		// complete top of book to publish.
		if len(book.Bids) == 0 || len(book.Asks) == 0 || len(book.Bids[0]) < 2 || len(book.Asks[0]) < 2 {
			return model.TopOfBook{}, false, nil
		}
		bid, bidVol, err := parseLevel([2]string{book.Bids[0][0], book.Bids[0][1]})
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		ask, askVol, err := parseLevel([2]string{book.Asks[0][0], book.Asks[0][1]})
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		return model.TopOfBook{Bid: bid, BidVolume: bidVol, Ask: ask, AskVolume: askVol}, true, nil
	}

	if !strings.HasPrefix(env.Topic, "tickers.") {
		return model.TopOfBook{}, false, nil
	}
	var t bybitTickerData
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return model.TopOfBook{}, false, err
	}
	// Ticker deltas only carry changed fields; skip frames without a full
	// bid/ask picture.
	if t.Bid1Price == "" || t.Ask1Price == "" {
		return model.TopOfBook{}, false, nil
	}
	bid, err := decimal.NewFromString(t.Bid1Price)
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	ask, err := decimal.NewFromString(t.Ask1Price)
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	return model.TopOfBook{Bid: bid, Ask: ask}, true, nil
}
