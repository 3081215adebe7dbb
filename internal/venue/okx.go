package venue

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/model"
)

// okxSpec normalizes OKX's v5 public "tickers" and "books5" channels, whose
// envelope wraps a per-update array under an "arg"/"data" object.
type okxSpec struct {
	universe []model.Symbol
}

func NewOKXSpec(universe []model.Symbol) Spec {
	return &okxSpec{universe: universe}
}

func (o *okxSpec) Name() model.VenueID { return "okx" }

func (o *okxSpec) SupportedSymbols() []model.Symbol { return o.universe }

func (o *okxSpec) instID(symbol model.Symbol) string {
	base, quote := symbol.Split()
	return base + "-" + quote
}

func (o *okxSpec) DialURL(model.Symbol, StreamKind) string {
	return "wss://ws.okx.com:8443/ws/v5/public"
}

func (o *okxSpec) SubscribePayload(symbol model.Symbol, kind StreamKind) []byte {
	channel := "tickers"
	if kind == StreamOrderbook {
		channel = "books5"
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{
			{"channel": channel, "instId": o.instID(symbol)},
		},
	})
	return payload
}

type okxTickerData struct {
	BidPx string `json:"bidPx"`
	BidSz string `json:"bidSz"`
	AskPx string `json:"askPx"`
	AskSz string `json:"askSz"`
}

type okxBookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

type okxEnvelope struct {
	Event string          `json:"event"`
	Arg   json.RawMessage `json:"arg"`
	Data  json.RawMessage `json:"data"`
}

func (o *okxSpec) Parse(kind StreamKind, raw []byte) (model.TopOfBook, bool, error) {
	var env okxEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.TopOfBook{}, false, err
	}
	if env.Event != "" || len(env.Data) == 0 {
		return model.TopOfBook{}, false, nil // subscribe ack/error event, no data
	}

	if kind == StreamOrderbook {
		var rows []okxBookData
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return model.TopOfBook{}, false, err
		}
		if len(rows) == 0 || len(rows[0].Bids) == 0 || len(rows[0].Asks) == 0 {
			return model.TopOfBook{}, false, nil
		}
		bid, bidVol, err := parseLevel([2]string{rows[0].Bids[0][0], rows[0].Bids[0][1]})
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		ask, askVol, err := parseLevel([2]string{rows[0].Asks[0][0], rows[0].Asks[0][1]})
		if err != nil {
			return model.TopOfBook{}, false, err
		}
		return model.TopOfBook{Bid: bid, BidVolume: bidVol, Ask: ask, AskVolume: askVol}, true, nil
	}

	var rows []okxTickerData
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return model.TopOfBook{}, false, err
	}
	if len(rows) == 0 {
		return model.TopOfBook{}, false, nil
	}
	row := rows[0]
	if row.BidPx == "" || row.AskPx == "" {
		return model.TopOfBook{}, false, nil
	}
	bid, err := decimal.NewFromString(row.BidPx)
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	ask, err := decimal.NewFromString(row.AskPx)
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	return model.TopOfBook{Bid: bid, Ask: ask}, true, nil
}
