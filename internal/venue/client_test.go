package venue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/arbiscan/internal/model"
)

// fakeConn lets tests drive the Adapter's read loop deterministically: it
// replays a fixed sequence of messages, then returns readErr forever to
// force the stream into its ERROR state.
type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	readErr  error
	closed   bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) > 0 {
		msg := c.messages[0]
		c.messages = c.messages[1:]
		return 1, msg, nil
	}
	time.Sleep(time.Millisecond) // avoid a hot loop once messages are drained
	return 0, nil, c.readErr
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	connFn  func(dialCount int) (Conn, error)
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.mu.Unlock()
	return d.connFn(n)
}

type fakeSink struct {
	mu      sync.Mutex
	tickers []model.TopOfBook
}

func (s *fakeSink) PutTicker(_ model.VenueID, _ model.Symbol, tob model.TopOfBook) {
	s.mu.Lock()
	s.tickers = append(s.tickers, tob)
	s.mu.Unlock()
}
func (s *fakeSink) PutOrderbook(model.VenueID, model.Symbol, model.TopOfBook) {}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickers)
}

type fakeSpec struct {
	universe []model.Symbol
}

func (f *fakeSpec) Name() model.VenueID               { return "fakevenue" }
func (f *fakeSpec) SupportedSymbols() []model.Symbol  { return f.universe }
func (f *fakeSpec) DialURL(model.Symbol, StreamKind) string { return "wss://fake" }
func (f *fakeSpec) SubscribePayload(model.Symbol, StreamKind) []byte { return nil }

func (f *fakeSpec) Parse(kind StreamKind, raw []byte) (model.TopOfBook, bool, error) {
	if kind != StreamTicker {
		return model.TopOfBook{}, false, nil
	}
	var msg struct {
		Bid string `json:"bid"`
		Ask string `json:"ask"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return model.TopOfBook{}, false, err
	}
	tob, _, err := parseFakeLevel(msg.Bid, msg.Ask)
	return tob, true, err
}

func parseFakeLevel(bid, ask string) (model.TopOfBook, bool, error) {
	b, err := decimal.NewFromString(bid)
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	a, err := decimal.NewFromString(ask)
	if err != nil {
		return model.TopOfBook{}, false, err
	}
	return model.TopOfBook{Bid: b, Ask: a}, true, nil
}

func TestAdapterStateMachineReconnects(t *testing.T) {
	msg, _ := json.Marshal(map[string]string{"bid": "49000", "ask": "50000"})

	dialer := &fakeDialer{
		connFn: func(dialCount int) (Conn, error) {
			return &fakeConn{messages: [][]byte{msg}, readErr: errors.New("simulated close")}, nil
		},
	}

	var statesMu sync.Mutex
	var states []State
	obs := func(_ model.VenueID, _ model.Symbol, kind StreamKind, state State) {
		if kind != StreamTicker {
			return
		}
		statesMu.Lock()
		states = append(states, state)
		statesMu.Unlock()
	}

	sink := &fakeSink{}
	spec := &fakeSpec{universe: []model.Symbol{"BTC/USDT"}}
	adapter := NewAdapter(spec, dialer, sink, nil, zerolog.Nop(), obs)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	adapter.Start(ctx, []model.Symbol{"BTC/USDT"})

	require.Eventually(t, func() bool {
		return sink.count() > 0
	}, time.Second, 5*time.Millisecond, "expected at least one normalized ticker snapshot")

	adapter.Close(2 * time.Second)

	statesMu.Lock()
	defer statesMu.Unlock()
	require.Contains(t, states, StateConnecting)
	require.Contains(t, states, StateStreaming)
	require.Contains(t, states, StateError)
	require.Contains(t, states, StateBackoff)
}

func TestAdapterSymbolsIntersection(t *testing.T) {
	spec := &fakeSpec{universe: []model.Symbol{"BTC/USDT", "ETH/USDT"}}
	adapter := NewAdapter(spec, &fakeDialer{connFn: func(int) (Conn, error) { return nil, errors.New("no dial") }}, &fakeSink{}, nil, zerolog.Nop(), nil)

	got := adapter.Symbols([]model.Symbol{"ETH/USDT", "SOL/USDT"})
	require.Equal(t, []model.Symbol{"ETH/USDT"}, got)
}
