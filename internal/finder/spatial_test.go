package finder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/arbiscan/internal/model"
)

type fakeCache struct {
	orderbooks map[string]model.TopOfBook
	tickers    map[string]model.TopOfBook
}

func newFakeCache() *fakeCache {
	return &fakeCache{orderbooks: map[string]model.TopOfBook{}, tickers: map[string]model.TopOfBook{}}
}

func ck(venue model.VenueID, symbol model.Symbol) string { return string(venue) + "|" + string(symbol) }

func (f *fakeCache) putOrderbook(venue model.VenueID, symbol model.Symbol, bid, bidVol, ask, askVol float64) {
	f.orderbooks[ck(venue, symbol)] = model.TopOfBook{
		Venue: venue, Symbol: symbol,
		Bid: decimal.NewFromFloat(bid), BidVolume: decimal.NewFromFloat(bidVol),
		Ask: decimal.NewFromFloat(ask), AskVolume: decimal.NewFromFloat(askVol),
	}
}

func (f *fakeCache) putTicker(venue model.VenueID, symbol model.Symbol, bid, ask float64) {
	f.tickers[ck(venue, symbol)] = model.TopOfBook{
		Venue: venue, Symbol: symbol,
		Bid: decimal.NewFromFloat(bid), Ask: decimal.NewFromFloat(ask),
	}
}

func (f *fakeCache) GetTicker(venue model.VenueID, symbol model.Symbol) (model.TopOfBook, bool) {
	t, ok := f.tickers[ck(venue, symbol)]
	return t, ok
}

func (f *fakeCache) GetOrderbook(venue model.VenueID, symbol model.Symbol) (model.TopOfBook, bool) {
	t, ok := f.orderbooks[ck(venue, symbol)]
	return t, ok
}

type fakeCommissions struct {
	fees    map[string]decimal.Decimal
	symbols map[model.VenueID][]model.Symbol
}

func newFakeCommissions(symbols map[model.VenueID][]model.Symbol) *fakeCommissions {
	return &fakeCommissions{fees: map[string]decimal.Decimal{}, symbols: symbols}
}

func feeKey(venue model.VenueID, symbol model.Symbol, side model.Side) string {
	return string(venue) + "|" + string(symbol) + "|" + string(side)
}

func (f *fakeCommissions) setFee(venue model.VenueID, symbol model.Symbol, side model.Side, pct float64) {
	f.fees[feeKey(venue, symbol, side)] = decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
}

func (f *fakeCommissions) GetFee(venue model.VenueID, symbol model.Symbol, side model.Side) decimal.Decimal {
	if d, ok := f.fees[feeKey(venue, symbol, side)]; ok {
		return d
	}
	return decimal.Zero
}

func (f *fakeCommissions) SymbolsFor(venue model.VenueID) []model.Symbol {
	return f.symbols[venue]
}

// Crossed books across two venues with zero fees: buy the cheap ask,
// sell into the rich bid.
func TestSpatialFinder_FindsCrossedBooks(t *testing.T) {
	cache := newFakeCache()
	cache.putOrderbook("binance", "BTC/USDT", 49000, 1, 50000, 1)
	cache.putOrderbook("bybit", "BTC/USDT", 51000, 1, 48000, 1)

	comm := newFakeCommissions(map[model.VenueID][]model.Symbol{
		"binance": {"BTC/USDT"},
		"bybit":   {"BTC/USDT"},
	})

	f := NewSpatialFinder(cache, comm, []model.VenueID{"binance", "bybit"}, decimal.NewFromFloat(0.01))
	opps := f.Find()

	require.NotEmpty(t, opps)
	best := opps[0]
	require.Equal(t, model.VenueID("bybit"), best.BuyVenue)
	require.Equal(t, model.VenueID("binance"), best.SellVenue)
	require.True(t, best.BuyPrice.Equal(decimal.NewFromInt(48000)))
	require.True(t, best.SellPrice.Equal(decimal.NewFromInt(49000)))

	expectedProfit := decimal.NewFromFloat(49000).Sub(decimal.NewFromFloat(48000)).Div(decimal.NewFromFloat(48000)).Mul(decimal.NewFromInt(100))
	diff := best.ProfitPercent.Sub(expectedProfit).Abs()
	require.True(t, diff.LessThan(decimal.NewFromFloat(0.001)), "profit percent ~2.0833, got %s", best.ProfitPercent)

	require.NotNil(t, best.VolumeUsd)
	expectedVol := decimal.NewFromFloat(48500)
	require.True(t, best.VolumeUsd.Sub(expectedVol).Abs().LessThan(decimal.NewFromFloat(0.01)))
}

// Rising fees first shrink the edge, then eliminate it entirely.
func TestSpatialFinder_FeesEliminateOpportunity(t *testing.T) {
	cache := newFakeCache()
	cache.putOrderbook("binance", "BTC/USDT", 49000, 1, 50000, 1)
	cache.putOrderbook("bybit", "BTC/USDT", 51000, 1, 48000, 1)

	comm := newFakeCommissions(map[model.VenueID][]model.Symbol{
		"binance": {"BTC/USDT"},
		"bybit":   {"BTC/USDT"},
	})
	for _, v := range []model.VenueID{"binance", "bybit"} {
		comm.setFee(v, "BTC/USDT", model.SideTakerBuy, 1)
		comm.setFee(v, "BTC/USDT", model.SideTakerSell, 1)
	}

	f := NewSpatialFinder(cache, comm, []model.VenueID{"binance", "bybit"}, decimal.NewFromFloat(0.01))
	opps := f.Find()
	require.NotEmpty(t, opps, "0.0619%% profit should still clear the 0.01%% threshold")

	for _, v := range []model.VenueID{"binance", "bybit"} {
		comm.setFee(v, "BTC/USDT", model.SideTakerBuy, 2)
		comm.setFee(v, "BTC/USDT", model.SideTakerSell, 2)
	}
	opps = f.Find()
	require.Empty(t, opps, "2%% fees on both sides should eliminate the opportunity")
}

// A missing orderbook falls back to the ticker, with volume nulled.
func TestSpatialFinder_FallbackToTicker(t *testing.T) {
	cache := newFakeCache()
	cache.putTicker("binance", "BTC/USDT", 49000, 50000)
	cache.putOrderbook("bybit", "BTC/USDT", 51000, 1, 48000, 1)

	comm := newFakeCommissions(map[model.VenueID][]model.Symbol{
		"binance": {"BTC/USDT"},
		"bybit":   {"BTC/USDT"},
	})

	f := NewSpatialFinder(cache, comm, []model.VenueID{"binance", "bybit"}, decimal.NewFromFloat(0.01))
	opps := f.Find()
	require.NotEmpty(t, opps)
	require.Nil(t, opps[0].VolumeUsd, "sell side (binance) volume is unknown (ticker fallback), so volume_usd must be null")
}

func TestSpatialFinder_NoOpportunityBelowThreshold(t *testing.T) {
	cache := newFakeCache()
	cache.putOrderbook("binance", "BTC/USDT", 49999, 1, 50000, 1)
	cache.putOrderbook("bybit", "BTC/USDT", 50000, 1, 49999, 1)

	comm := newFakeCommissions(map[model.VenueID][]model.Symbol{
		"binance": {"BTC/USDT"},
		"bybit":   {"BTC/USDT"},
	})

	f := NewSpatialFinder(cache, comm, []model.VenueID{"binance", "bybit"}, decimal.NewFromFloat(50))
	opps := f.Find()
	for _, o := range opps {
		require.True(t, o.ProfitPercent.GreaterThanOrEqual(decimal.NewFromFloat(50)))
	}
}

func TestSpatialFinder_DeterministicTieBreak(t *testing.T) {
	cache := newFakeCache()
	cache.putOrderbook("alpha", "BTC/USDT", 49000, 1, 50000, 1)
	cache.putOrderbook("beta", "BTC/USDT", 51000, 1, 48000, 1)
	cache.putOrderbook("gamma", "BTC/USDT", 51000, 1, 48000, 1)

	comm := newFakeCommissions(map[model.VenueID][]model.Symbol{
		"alpha": {"BTC/USDT"}, "beta": {"BTC/USDT"}, "gamma": {"BTC/USDT"},
	})

	f := NewSpatialFinder(cache, comm, []model.VenueID{"alpha", "beta", "gamma"}, decimal.NewFromFloat(0.01))
	opps1 := f.Find()
	opps2 := f.Find()
	require.Equal(t, opps1, opps2, "repeated runs over identical state must produce identical ordering")
}
