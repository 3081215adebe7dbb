// Package finder implements the two periodic arbitrage scans over the
// freshness cache and commission table: a pairwise two-venue scan and a
// negative-cycle search over a logarithmic rate graph. Both are fee-aware
// and emit ranked, volume-annotated opportunities.
package finder

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/model"
)

// Cache is the read side the finders depend on, narrowed to just the two
// lookups they need.
type Cache interface {
	GetTicker(venue model.VenueID, symbol model.Symbol) (model.TopOfBook, bool)
	GetOrderbook(venue model.VenueID, symbol model.Symbol) (model.TopOfBook, bool)
}

// Commissions is the read side of the Commission Table the finders need.
type Commissions interface {
	GetFee(venue model.VenueID, symbol model.Symbol, side model.Side) decimal.Decimal
	SymbolsFor(venue model.VenueID) []model.Symbol
}

const hundred = "100"

var hundredD = decimal.RequireFromString(hundred)
var two = decimal.NewFromInt(2)

// SpatialFinder runs the pairwise two-venue scan.
type SpatialFinder struct {
	cache       Cache
	commissions Commissions
	venues      []model.VenueID
	minProfit   decimal.Decimal
}

// NewSpatialFinder constructs a SpatialFinder over the configured venue
// list and the minimum reportable profit percent.
func NewSpatialFinder(cache Cache, commissions Commissions, venues []model.VenueID, minProfitPercent decimal.Decimal) *SpatialFinder {
	return &SpatialFinder{cache: cache, commissions: commissions, venues: venues, minProfit: minProfitPercent}
}

// tobOrFallback returns the orderbook snapshot if fresh, else the ticker
// snapshot with volumes zeroed: ticker volume is undisclosed, so the
// opportunity gets no USD sizing.
func tobOrFallback(cache Cache, venue model.VenueID, symbol model.Symbol) (model.TopOfBook, bool) {
	if ob, ok := cache.GetOrderbook(venue, symbol); ok {
		return ob, true
	}
	if t, ok := cache.GetTicker(venue, symbol); ok {
		t.BidVolume = decimal.Zero
		t.AskVolume = decimal.Zero
		return t, true
	}
	return model.TopOfBook{}, false
}

// Find runs one full spatial scan and returns opportunities sorted by
// profit percent descending, deterministically tie-broken by
// (pair, buyVenue, sellVenue).
func (f *SpatialFinder) Find() []model.OpportunitySpatial {
	symbols := f.allConfiguredSymbols()

	var out []model.OpportunitySpatial
	for _, sym := range symbols {
		candidates := f.venuesFor(sym)
		for _, buyV := range candidates {
			for _, sellV := range candidates {
				if buyV == sellV {
					continue
				}
				opp, ok := f.evaluate(sym, buyV, sellV)
				if ok {
					out = append(out, opp)
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProfitPercent.Equal(out[j].ProfitPercent) {
			return out[i].ProfitPercent.GreaterThan(out[j].ProfitPercent)
		}
		if out[i].Pair != out[j].Pair {
			return out[i].Pair < out[j].Pair
		}
		if out[i].BuyVenue != out[j].BuyVenue {
			return out[i].BuyVenue < out[j].BuyVenue
		}
		return out[i].SellVenue < out[j].SellVenue
	})
	return out
}

func (f *SpatialFinder) evaluate(sym model.Symbol, buyV, sellV model.VenueID) (model.OpportunitySpatial, bool) {
	buy, ok := tobOrFallback(f.cache, buyV, sym)
	if !ok || !buy.Ask.IsPositive() {
		return model.OpportunitySpatial{}, false
	}
	sell, ok := tobOrFallback(f.cache, sellV, sym)
	if !ok || !sell.Bid.IsPositive() {
		return model.OpportunitySpatial{}, false
	}

	fBuy := f.commissions.GetFee(buyV, sym, model.SideTakerBuy)
	fSell := f.commissions.GetFee(sellV, sym, model.SideTakerSell)

	cost := buy.Ask.Mul(decimal.NewFromInt(1).Add(fBuy))
	revenue := sell.Bid.Mul(decimal.NewFromInt(1).Sub(fSell))

	if !revenue.GreaterThan(cost) {
		return model.OpportunitySpatial{}, false
	}

	profitPct := revenue.Sub(cost).Div(cost).Mul(hundredD)
	if profitPct.LessThan(f.minProfit) {
		return model.OpportunitySpatial{}, false
	}

	var volUsd *decimal.Decimal
	vol := decimal.Min(buy.AskVolume, sell.BidVolume)
	if vol.IsPositive() {
		v := vol.Mul(buy.Ask.Add(sell.Bid)).Div(two)
		volUsd = &v
	}

	return model.OpportunitySpatial{
		Pair:          sym,
		BuyVenue:      buyV,
		SellVenue:     sellV,
		BuyPrice:      buy.Ask,
		SellPrice:     sell.Bid,
		ProfitPercent: profitPct,
		VolumeUsd:     volUsd,
	}, true
}

func (f *SpatialFinder) allConfiguredSymbols() []model.Symbol {
	seen := make(map[model.Symbol]bool)
	var out []model.Symbol
	for _, v := range f.venues {
		for _, s := range f.commissions.SymbolsFor(v) {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *SpatialFinder) venuesFor(sym model.Symbol) []model.VenueID {
	var out []model.VenueID
	for _, v := range f.venues {
		for _, s := range f.commissions.SymbolsFor(v) {
			if s == sym {
				out = append(out, v)
				break
			}
		}
	}
	return out
}
