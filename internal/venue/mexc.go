package venue

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/model"
)

// mexcSpec normalizes MEXC's spot v3 push feed: the bookTicker channel for
// best bid/ask and the partial-depth channel (limit.depth, 5 levels) for the
// sized top of book. Channel-tagged envelopes, one shared endpoint.
type mexcSpec struct {
	universe []model.Symbol
}

func NewMexcSpec(universe []model.Symbol) Spec {
	return &mexcSpec{universe: universe}
}

func (m *mexcSpec) Name() model.VenueID { return "mexc" }

func (m *mexcSpec) SupportedSymbols() []model.Symbol { return m.universe }

func (m *mexcSpec) instrument(symbol model.Symbol) string {
	base, quote := symbol.Split()
	return base + quote
}

func (m *mexcSpec) DialURL(model.Symbol, StreamKind) string {
	return "wss://wbs.mexc.com/ws"
}

func (m *mexcSpec) SubscribePayload(symbol model.Symbol, kind StreamKind) []byte {
	channel := "spot@public.bookTicker.v3.api@" + m.instrument(symbol)
	if kind == StreamOrderbook {
		channel = "spot@public.limit.depth.v3.api@" + m.instrument(symbol) + "@5"
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"method": "SUBSCRIPTION",
		"params": []string{channel},
	})
	return payload
}

type mexcBookTicker struct {
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type mexcDepthLevel struct {
	Price  string `json:"p"`
	Volume string `json:"v"`
}

type mexcDepth struct {
	Bids []mexcDepthLevel `json:"bids"`
	Asks []mexcDepthLevel `json:"asks"`
}

type mexcEnvelope struct {
	Channel string          `json:"c"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"d"`
}

func (m *mexcSpec) Parse(kind StreamKind, raw []byte) (model.TopOfBook, bool, error) {
	var env mexcEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.TopOfBook{}, false, err
	}
	if env.Channel == "" || len(env.Data) == 0 {
		return model.TopOfBook{}, false, nil // subscription ack or PONG
	}

	if kind == StreamOrderbook {
		if !strings.Contains(env.Channel, "limit.depth") {
			return model.TopOfBook{}, false, nil
		}
		var d mexcDepth
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return model.TopOfBook{}, false, err
		}
		if len(d.Bids) == 0 || len(d.Asks) == 0 {
			return model.TopOfBook{}, false, nil
		}
		bid, bidVol, err := parseLevel([2]string{d.Bids[0].Price, d.Bids[0].Volume})
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		ask, askVol, err := parseLevel([2]string{d.Asks[0].Price, d.Asks[0].Volume})
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		return model.TopOfBook{Bid: bid, BidVolume: bidVol, Ask: ask, AskVolume: askVol}, true, nil
	}

	if !strings.Contains(env.Channel, "bookTicker") {
		return model.TopOfBook{}, false, nil
	}
	var t mexcBookTicker
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return model.TopOfBook{}, false, err
	}
	if t.BidPrice == "" || t.AskPrice == "" {
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
