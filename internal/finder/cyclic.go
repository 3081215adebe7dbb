package finder

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/model"
)

// edge is one record in the flat edge arena: Bellman-Ford relaxes edges
// in arbitrary order and benefits from a linear scan over adjacency maps.
// from/to are dense integer currency ids from the intern table below.
type edge struct {
	venue  model.VenueID
	pair   model.Symbol
	side   model.LegSide
	from   int
	to     int
	weight float64
	price  decimal.Decimal
	volume decimal.Decimal
}

// currencyInterner assigns dense integer ids to currency codes so the
// distance/predecessor vectors can be plain slices instead of maps.
type currencyInterner struct {
	idOf  map[string]int
	names []string
}

func newCurrencyInterner() *currencyInterner {
	return &currencyInterner{idOf: make(map[string]int)}
}

func (ci *currencyInterner) intern(name string) int {
	if id, ok := ci.idOf[name]; ok {
		return id
	}
	id := len(ci.names)
	ci.idOf[name] = id
	ci.names = append(ci.names, name)
	return id
}

// CyclicFinder runs Bellman-Ford negative-cycle detection over a
// logarithmic rate graph built from fresh orderbook snapshots.
type CyclicFinder struct {
	cache       Cache
	commissions Commissions
	venues      []model.VenueID
	minProfit   decimal.Decimal
}

func NewCyclicFinder(cache Cache, commissions Commissions, venues []model.VenueID, minProfitPercent decimal.Decimal) *CyclicFinder {
	return &CyclicFinder{cache: cache, commissions: commissions, venues: venues, minProfit: minProfitPercent}
}

// Find runs one full cyclic scan and returns deduplicated opportunities
// sorted by profit percent descending.
func (f *CyclicFinder) Find() []model.OpportunityCyclic {
	interner := newCurrencyInterner()
	edges := f.buildGraph(interner)
	if len(edges) == 0 {
		return nil
	}

	var out []model.OpportunityCyclic
	seenCanonical := make(map[string]bool)

	for start := 0; start < len(interner.names); start++ {
		cycle := f.detectFromSource(edges, len(interner.names), start)
		if cycle == nil {
			continue
		}
		opp, profitPct := f.materialize(cycle)
		if profitPct.LessThan(f.minProfit) {
			continue
		}
		canon := canonicalKey(opp.Legs)
		if seenCanonical[canon] {
			continue
		}
		seenCanonical[canon] = true
		opp.ProfitPercent = profitPct
		out = append(out, opp)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProfitPercent.Equal(out[j].ProfitPercent) {
			return out[i].ProfitPercent.GreaterThan(out[j].ProfitPercent)
		}
		return canonicalKey(out[i].Legs) < canonicalKey(out[j].Legs)
	})
	return out
}

// buildGraph constructs the arena of edges: one buy edge and one sell edge
// per (venue, pair) with a fresh, positive-priced orderbook snapshot.
func (f *CyclicFinder) buildGraph(interner *currencyInterner) []edge {
	var edges []edge
	seenPair := make(map[string]bool)

	for _, v := range f.venues {
		for _, sym := range f.commissions.SymbolsFor(v) {
			dedupKey := string(v) + "|" + string(sym)
			if seenPair[dedupKey] {
				continue
			}
			seenPair[dedupKey] = true

			ob, ok := f.cache.GetOrderbook(v, sym)
			if !ok || !ob.Ask.IsPositive() || !ob.Bid.IsPositive() {
				continue
			}

			base, quote := sym.Split()
			baseID := interner.intern(base)
			quoteID := interner.intern(quote)

			fBuy := f.commissions.GetFee(v, sym, model.SideTakerBuy)
			fSell := f.commissions.GetFee(v, sym, model.SideTakerSell)

			askF, _ := ob.Ask.Float64()
			bidF, _ := ob.Bid.Float64()
			fBuyF, _ := fBuy.Float64()
			fSellF, _ := fSell.Float64()

			if askF > 0 {
				rate := (1 - fBuyF) / askF
				edges = append(edges, edge{
					venue: v, pair: sym, side: model.LegBuy,
					from: quoteID, to: baseID,
					weight: -math.Log(rate),
					price:  ob.Ask, volume: ob.AskVolume,
				})
			}
			if bidF > 0 {
				rate := bidF * (1 - fSellF)
				edges = append(edges, edge{
					venue: v, pair: sym, side: model.LegSell,
					from: baseID, to: quoteID,
					weight: -math.Log(rate),
					price:  ob.Bid, volume: ob.BidVolume,
				})
			}
		}
	}
	return edges
}

// detectFromSource runs Bellman-Ford from source and, if a negative cycle
// reachable from it exists, returns the cycle as an ordered edge list
// (execution order). Returns nil if no relaxable edge remains after
// |V|-1 passes, or if the recovered cycle has fewer than 3 or more than 8
// legs. An edge leading straight back to the node its source was reached
// from is never relaxed, so a two-leg round trip cannot take over the
// predecessor chain and hide a longer cycle.
func (f *CyclicFinder) detectFromSource(edges []edge, numNodes, source int) []edge {
	const inf = math.MaxFloat64

	dist := make([]float64, numNodes)
	pred := make([]int, numNodes)
	predEdge := make([]*edge, numNodes)
	for i := range dist {
		dist[i] = inf
		pred[i] = -1
	}
	dist[source] = 0

	backtracks := func(e *edge) bool {
		return predEdge[e.from] != nil && predEdge[e.from].from == e.to
	}

	for i := 0; i < numNodes-1; i++ {
		changed := false
		for ei := range edges {
			e := &edges[ei]
			if dist[e.from] == inf || backtracks(e) {
				continue
			}
			if nd := dist[e.from] + e.weight; nd < dist[e.to] {
				dist[e.to] = nd
				pred[e.to] = e.from
				predEdge[e.to] = e
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var relaxable int = -1
	for ei := range edges {
		e := &edges[ei]
		if dist[e.from] == inf || backtracks(e) {
			continue
		}
		if dist[e.from]+e.weight < dist[e.to] {
			relaxable = e.to
			pred[e.to] = e.from
			predEdge[e.to] = e
			break
		}
	}
	if relaxable == -1 {
		return nil
	}

	// Walk predecessors until a repeated vertex is seen to recover the
	// cycle.
	visited := make(map[int]bool)
	cur := relaxable
	for !visited[cur] {
		visited[cur] = true
		if pred[cur] == -1 {
			return nil
		}
		cur = pred[cur]
	}
	cycleStart := cur

	var cycleEdges []edge
	cur = cycleStart
	for {
		e := predEdge[cur]
		if e == nil {
			return nil
		}
		cycleEdges = append(cycleEdges, *e)
		cur = e.from
		if cur == cycleStart {
			break
		}
		if len(cycleEdges) > numNodes {
			return nil // safety valve against malformed predecessor chains
		}
	}

	// cycleEdges was built walking backward (target -> source); reverse to
	// obtain execution order.
	for i, j := 0, len(cycleEdges)-1; i < j; i, j = i+1, j-1 {
		cycleEdges[i], cycleEdges[j] = cycleEdges[j], cycleEdges[i]
	}

	if len(cycleEdges) < 3 || len(cycleEdges) > 8 {
		return nil
	}
	return cycleEdges
}

// materialize converts a cycle's edge list into the wire-shaped
// OpportunityCyclic plus its Decimal profit percent. The float result is
// rounded to 1e-8 before crossing back into Decimal.
func (f *CyclicFinder) materialize(cycle []edge) (model.OpportunityCyclic, decimal.Decimal) {
	var sumWeights float64
	legs := make([]model.CyclicLeg, 0, len(cycle))
	var minVolume decimal.Decimal
	var priceSum decimal.Decimal

	for i, e := range cycle {
		sumWeights += e.weight
		legs = append(legs, model.CyclicLeg{Venue: e.venue, Pair: e.pair, Side: e.side})
		priceSum = priceSum.Add(e.price)
		if i == 0 || e.volume.LessThan(minVolume) {
			minVolume = e.volume
		}
	}

	profitRatio := math.Exp(-sumWeights) - 1
	rounded := math.Round(profitRatio*1e8) / 1e8
	profitPercent := decimal.NewFromFloat(rounded).Mul(hundredD)

	var volUsd *decimal.Decimal
	if minVolume.IsPositive() {
		avgPrice := priceSum.Div(decimal.NewFromInt(int64(len(cycle))))
		v := minVolume.Mul(avgPrice)
		volUsd = &v
	}

	return model.OpportunityCyclic{Legs: legs, VolumeUsd: volUsd}, profitPercent
}

// canonicalKey canonicalizes a cycle's leg list to its lexicographically
// smallest rotation so rotations of the same cycle dedupe. A reversed cycle
// has different legs (opposite sides) and therefore a different key.
func canonicalKey(legs []model.CyclicLeg) string {
	if len(legs) == 0 {
		return ""
	}
	descs := make([]string, len(legs))
	for i, l := range legs {
		descs[i] = string(l.Venue) + ":" + string(l.Pair) + ":" + string(l.Side)
	}

	best := rotationString(descs, 0)
	for start := 1; start < len(descs); start++ {
		candidate := rotationString(descs, start)
		if candidate < best {
			best = candidate
		}
	}
	return best
}

func rotationString(descs []string, start int) string {
	var b strings.Builder
	for i := 0; i < len(descs); i++ {
		b.WriteString(descs[(start+i)%len(descs)])
		b.WriteByte('|')
	}
	return b.String()
}
