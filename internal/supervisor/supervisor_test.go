package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/arbiscan/internal/metrics"
	"github.com/sawpanic/arbiscan/internal/model"
	"github.com/sawpanic/arbiscan/internal/venue"
)

type fakeCommissions struct {
	symbols map[model.VenueID][]model.Symbol
}

func (f *fakeCommissions) SymbolsFor(v model.VenueID) []model.Symbol { return f.symbols[v] }

type failingDialer struct{}

func (failingDialer) Dial(context.Context, string) (venue.Conn, error) {
	return nil, errors.New("connection refused")
}

type nopSink struct{}

func (nopSink) PutTicker(model.VenueID, model.Symbol, model.TopOfBook)    {}
func (nopSink) PutOrderbook(model.VenueID, model.Symbol, model.TopOfBook) {}

func TestStartSkipsUnusableVenuesAndRunsTheRest(t *testing.T) {
	commissions := &fakeCommissions{symbols: map[model.VenueID][]model.Symbol{
		"binance":      {"BTC/USDT"},
		"unknownvenue": {"BTC/USDT"},
		// "empty" has no configured symbols at all.
	}}

	s := New(commissions, nil, failingDialer{}, nopSink{}, nil, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, []model.VenueID{"binance", "unknownvenue", "empty"})
	defer s.Stop()

	require.Equal(t, []model.VenueID{"binance"}, s.ActiveVenues())
}

func TestStartIsIdempotent(t *testing.T) {
	commissions := &fakeCommissions{symbols: map[model.VenueID][]model.Symbol{
		"binance": {"BTC/USDT"},
	}}

	s := New(commissions, nil, failingDialer{}, nopSink{}, nil, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, []model.VenueID{"binance"})
	s.Start(ctx, []model.VenueID{"binance"})
	require.Len(t, s.ActiveVenues(), 1)

	s.Stop()
	require.Empty(t, s.ActiveVenues())
}

func TestSupportedUniverseIntersection(t *testing.T) {
	commissions := &fakeCommissions{symbols: map[model.VenueID][]model.Symbol{
		"binance": {"BTC/USDT", "DOGE/USDT"},
	}}
	supported := map[model.VenueID][]model.Symbol{
		"binance": {"BTC/USDT", "ETH/USDT"},
	}

	s := New(commissions, supported, failingDialer{}, nopSink{}, nil, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DOGE/USDT is configured but not venue-supported, so only BTC/USDT
	// streams launch; the venue itself still counts as running.
	s.Start(ctx, []model.VenueID{"binance"})
	defer s.Stop()
	require.Equal(t, []model.VenueID{"binance"}, s.ActiveVenues())
}

func TestFailedConnectsAreCountedPerVenue(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	commissions := &fakeCommissions{symbols: map[model.VenueID][]model.Symbol{
		"binance": {"BTC/USDT"},
	}}

	s := New(commissions, nil, failingDialer{}, nopSink{}, reg, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, []model.VenueID{"binance"})
	defer s.Stop()

	require.Eventually(t, func() bool {
		var m dto.Metric
		if err := reg.StreamFailures.WithLabelValues("binance").Write(&m); err != nil {
			return false
		}
		return m.Counter.GetValue() > 0
	}, 2*time.Second, 10*time.Millisecond, "dial failures must be counted against the venue")
}
