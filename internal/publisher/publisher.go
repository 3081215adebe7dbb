// Package publisher implements the periodic driver that runs both
// finders, records their durations, serializes the result sets to the
// external wire shape, and fans them out to subscribers. Ticks have a
// fixed period and never overlap.
package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/metrics"
	"github.com/sawpanic/arbiscan/internal/model"
)

const defaultTickInterval = 5 * time.Second

// SpatialFinder is the read side of the spatial scan the publisher drives.
type SpatialFinder interface {
	Find() []model.OpportunitySpatial
}

// CyclicFinder is the read side of the cyclic scan the publisher drives.
type CyclicFinder interface {
	Find() []model.OpportunityCyclic
}

// subscriberBuf is the channel buffer per subscriber. A send that would
// block past this buffer is dropped rather than blocking the publisher.
const subscriberBuf = 4

// Publisher drives both finders on a timer and fans results out.
type Publisher struct {
	spatial  SpatialFinder
	cyclic   CyclicFinder
	metrics  *metrics.Registry
	log      zerolog.Logger
	interval time.Duration

	mu            sync.RWMutex
	spatialSubs   []chan []byte
	cyclicSubs    []chan []byte
	lastSpatial   []model.OpportunitySpatial
	lastCyclic    []model.OpportunityCyclic
}

// New constructs a Publisher. interval <= 0 selects the default 5s tick.
func New(spatial SpatialFinder, cyclic CyclicFinder, reg *metrics.Registry, log zerolog.Logger, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Publisher{spatial: spatial, cyclic: cyclic, metrics: reg, log: log, interval: interval}
}

// RunLoop ticks on the configured interval, sequentially running spatial
// then cyclic, until ctx is cancelled. Iterations never overlap: the next tick is scheduled
// from the start time of the current one and fires immediately (no extra
// wait) if the current tick overran the interval.
func (p *Publisher) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Publisher) tick() {
	p.runSpatial()
	p.runCyclic()
	if p.metrics != nil {
		p.metrics.PublisherTicks.Inc()
	}
}

func (p *Publisher) runSpatial() {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("spatial finder panicked, emitting empty result for this iteration")
			if p.metrics != nil {
				p.metrics.PublisherErrors.WithLabelValues("spatial").Inc()
			}
			p.mu.Lock()
			p.lastSpatial = nil
			p.mu.Unlock()
			p.broadcast(p.spatialSubsSnapshot(), MarshalSpatial(nil))
		}
	}()

	var timer *metrics.StepTimer
	if p.metrics != nil {
		timer = p.metrics.StartFinderTimer("spatial")
	}
	opps := p.spatial.Find()
	if timer != nil {
		timer.Stop()
	}
	if p.metrics != nil {
		p.metrics.OpportunitiesFound.WithLabelValues("spatial").Add(float64(len(opps)))
	}

	p.mu.Lock()
	p.lastSpatial = opps
	p.mu.Unlock()

	p.broadcast(p.spatialSubsSnapshot(), MarshalSpatial(opps))
}

func (p *Publisher) runCyclic() {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("cyclic finder panicked, emitting empty result for this iteration")
			if p.metrics != nil {
				p.metrics.PublisherErrors.WithLabelValues("cyclic").Inc()
			}
			p.mu.Lock()
			p.lastCyclic = nil
			p.mu.Unlock()
			p.broadcast(p.cyclicSubsSnapshot(), MarshalCyclic(nil))
		}
	}()

	var timer *metrics.StepTimer
	if p.metrics != nil {
		timer = p.metrics.StartFinderTimer("cyclic")
	}
	opps := p.cyclic.Find()
	if timer != nil {
		timer.Stop()
	}
	if p.metrics != nil {
		p.metrics.OpportunitiesFound.WithLabelValues("cyclic").Add(float64(len(opps)))
	}

	p.mu.Lock()
	p.lastCyclic = opps
	p.mu.Unlock()

	p.broadcast(p.cyclicSubsSnapshot(), MarshalCyclic(opps))
}

func (p *Publisher) spatialSubsSnapshot() []chan []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chan []byte, len(p.spatialSubs))
	copy(out, p.spatialSubs)
	return out
}

func (p *Publisher) cyclicSubsSnapshot() []chan []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chan []byte, len(p.cyclicSubs))
	copy(out, p.cyclicSubs)
	return out
}

func (p *Publisher) broadcast(subs []chan []byte, payload []byte) {
	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
			// Slow subscriber: drop this tick's frame rather than block.
		}
	}
}

// GetSpatialOpportunities returns the spatial result set from the most
// recent publisher tick without recomputing.
func (p *Publisher) GetSpatialOpportunities() []model.OpportunitySpatial {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSpatial
}

// GetCyclicOpportunities returns the cyclic result set from the most recent
// publisher tick without recomputing.
func (p *Publisher) GetCyclicOpportunities() []model.OpportunityCyclic {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastCyclic
}

// FindSpatialNow runs the spatial finder synchronously, for request/response
// API callers.
func (p *Publisher) FindSpatialNow() []model.OpportunitySpatial {
	return p.spatial.Find()
}

// FindCyclicNow runs the cyclic finder synchronously, for request/response
// API callers.
func (p *Publisher) FindCyclicNow() []model.OpportunityCyclic {
	return p.cyclic.Find()
}

// SubscribeSpatial registers a new subscriber channel for spatial pushes.
func (p *Publisher) SubscribeSpatial() <-chan []byte {
	ch := make(chan []byte, subscriberBuf)
	p.mu.Lock()
	p.spatialSubs = append(p.spatialSubs, ch)
	p.mu.Unlock()
	return ch
}

// SubscribeCyclic registers a new subscriber channel for cyclic pushes.
func (p *Publisher) SubscribeCyclic() <-chan []byte {
	ch := make(chan []byte, subscriberBuf)
	p.mu.Lock()
	p.cyclicSubs = append(p.cyclicSubs, ch)
	p.mu.Unlock()
	return ch
}

// --- wire format ---

type spatialWire struct {
	Pair          string  `json:"pair"`
	BuyExchange   string  `json:"buy_exchange"`
	SellExchange  string  `json:"sell_exchange"`
	BuyPrice      string  `json:"buy_price"`
	SellPrice     string  `json:"sell_price"`
	ProfitPercent string  `json:"profit_percent"`
	VolumeUsd     *string `json:"volume_usd"`
}

type cyclicLegWire [3]string

type cyclicWire struct {
	Cycle         []cyclicLegWire `json:"cycle"`
	ProfitPercent string          `json:"profit_percent"`
	VolumeUsd     *string         `json:"volume_usd"`
}

func decimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// MarshalSpatial serializes a spatial result set to the external wire
// shape. The same bytes are broadcast to subscribers and returned by the
// request/response endpoints.
func MarshalSpatial(opps []model.OpportunitySpatial) []byte {
	wire := make([]spatialWire, 0, len(opps))
	for _, o := range opps {
		wire = append(wire, spatialWire{
			Pair:          string(o.Pair),
			BuyExchange:   strings.ToUpper(string(o.BuyVenue)),
			SellExchange:  strings.ToUpper(string(o.SellVenue)),
			BuyPrice:      o.BuyPrice.String(),
			SellPrice:     o.SellPrice.String(),
			ProfitPercent: o.ProfitPercent.String(),
			VolumeUsd:     decimalPtrString(o.VolumeUsd),
		})
	}
	data, _ := json.Marshal(wire)
	return data
}

// MarshalCyclic serializes a cyclic result set to the external wire shape.
func MarshalCyclic(opps []model.OpportunityCyclic) []byte {
	wire := make([]cyclicWire, 0, len(opps))
	for _, o := range opps {
		legs := make([]cyclicLegWire, 0, len(o.Legs))
		for _, l := range o.Legs {
			legs = append(legs, cyclicLegWire{string(l.Venue), string(l.Pair), string(l.Side)})
		}
		wire = append(wire, cyclicWire{
			Cycle:         legs,
			ProfitPercent: o.ProfitPercent.String(),
			VolumeUsd:     decimalPtrString(o.VolumeUsd),
		})
	}
	data, _ := json.Marshal(wire)
	return data
}

