package venue

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/model"
)

// krakenSpec normalizes Kraken's public websocket feed. Kraken pushes
// array-framed messages [channelID, data, channelName, pair] for both the
// "ticker" and "book" channels, unlike the object envelopes every other
// venue here uses.
type krakenSpec struct {
	universe []model.Symbol
}

func NewKrakenSpec(universe []model.Symbol) Spec {
	return &krakenSpec{universe: universe}
}

func (k *krakenSpec) Name() model.VenueID { return "kraken" }

func (k *krakenSpec) SupportedSymbols() []model.Symbol { return k.universe }

func (k *krakenSpec) krakenPair(symbol model.Symbol) string {
	base, quote := symbol.Split()
	return base + "/" + quote
}

func (k *krakenSpec) DialURL(model.Symbol, StreamKind) string {
	return "wss://ws.kraken.com"
}

func (k *krakenSpec) SubscribePayload(symbol model.Symbol, kind StreamKind) []byte {
	channel := "ticker"
	if kind == StreamOrderbook {
		channel = "book"
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"event": "subscribe",
		"pair":  []string{k.krakenPair(symbol)},
		"subscription": map[string]string{
			"name": channel,
		},
	})
	return payload
}

// Parse handles the array-format channel payload. Event-type object
// messages (subscriptionStatus, heartbeat, systemStatus) are recognized and
// skipped (ok=false); anything that isn't valid JSON is InvalidMessage.
func (k *krakenSpec) Parse(kind StreamKind, raw []byte) (model.TopOfBook, bool, error) {
	var asObject map[string]interface{}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return model.TopOfBook{}, false, nil // event/ack/heartbeat frame
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return model.TopOfBook{}, false, err
	}
	if len(frame) < 2 {
		return model.TopOfBook{}, false, nil
	}

	if kind == StreamOrderbook {
		return k.parseBook(frame[1])
	}
	return k.parseTicker(frame[1])
}

type krakenTickerPayload struct {
	Ask []string `json:"a"`
	Bid []string `json:"b"`
}

func (k *krakenSpec) parseTicker(data json.RawMessage) (model.TopOfBook, bool, error) {
	var t krakenTickerPayload
	if err := json.Unmarshal(data, &t); err != nil {
		return model.TopOfBook{}, false, err
	}
	if len(t.Ask) == 0 || len(t.Bid) == 0 {
		return model.TopOfBook{}, false, nil
	}
	ask, err := decimal.NewFromString(t.Ask[0])
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	bid, err := decimal.NewFromString(t.Bid[0])
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	return model.TopOfBook{Ask: ask, Bid: bid}, true, nil
}

type krakenBookPayload struct {
	Asks [][]string `json:"as"`
	Bids [][]string `json:"bs"`
	Ask  [][]string `json:"a"`
	Bid  [][]string `json:"b"`
}

func (k *krakenSpec) parseBook(data json.RawMessage) (model.TopOfBook, bool, error) {
	var b krakenBookPayload
	if err := json.Unmarshal(data, &b); err != nil {
		return model.TopOfBook{}, false, err
	}
	asks := b.Asks
	if len(asks) == 0 {
		asks = b.Ask
	}
	bids := b.Bids
	if len(bids) == 0 {
		bids = b.Bid
	}
	if len(asks) == 0 || len(bids) == 0 {
		return model.TopOfBook{}, false, nil
	}
	if len(asks[0]) < 2 || len(bids[0]) < 2 {
		return model.TopOfBook{}, false, fmt.Errorf("kraken book: malformed level")
	}
	ask, askVol, err := parseLevel([2]string{asks[0][0], asks[0][1]})
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	bid, bidVol, err := parseLevel([2]string{bids[0][0], bids[0][1]})
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	return model.TopOfBook{Ask: ask, AskVolume: askVol, Bid: bid, BidVolume: bidVol}, true, nil
}
