// Package supervisor owns the lifecycle of every exchange adapter:
// startup enumeration, graceful stop, and a per-venue circuit breaker
// around connection attempts so a hard-down venue (auth failure, IP ban)
// degrades to periodic probes instead of a tight retry loop.
package supervisor

import (
	"context"
	"sync"
	"time"

	cb "github.com/sony/gobreaker"

	"github.com/rs/zerolog"

	"github.com/sawpanic/arbiscan/internal/metrics"
	"github.com/sawpanic/arbiscan/internal/model"
	"github.com/sawpanic/arbiscan/internal/venue"
)

const shutdownGrace = 15 * time.Second

// Commissions is the read side needed to resolve each venue's configured
// symbol universe.
type Commissions interface {
	SymbolsFor(venue model.VenueID) []model.Symbol
}

// venueBreaker adapts a gobreaker.CircuitBreaker to venue.ConnectGate:
// trip after 3 consecutive failures, or a >5% failure rate once at least
// 20 requests have been observed in the rolling interval, then cool down
// for 60s.
type venueBreaker struct {
	cb  *cb.CircuitBreaker
	reg *metrics.Registry
}

func newVenueBreaker(name string, reg *metrics.Registry) *venueBreaker {
	settings := cb.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts cb.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			total := counts.Requests
			if total < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(total) > 0.05
		},
	}
	return &venueBreaker{cb: cb.NewCircuitBreaker(settings), reg: reg}
}

func (b *venueBreaker) Allow() bool {
	return b.cb.State() != cb.StateOpen
}

func (b *venueBreaker) Report(err error) {
	if err != nil && b.reg != nil {
		b.reg.StreamFailures.WithLabelValues(b.cb.Name()).Inc()
	}
	_, _ = b.cb.Execute(func() (interface{}, error) { return nil, err })
}

type runningVenue struct {
	adapter *venue.Adapter
}

// Supervisor launches, tracks, and stops one adapter per enabled venue.
type Supervisor struct {
	commissions Commissions
	supported   map[model.VenueID][]model.Symbol
	dialer      venue.Dialer
	sink        venue.Sink
	metrics     *metrics.Registry
	log         zerolog.Logger
	obs         venue.StateObserver

	mu      sync.Mutex
	running map[model.VenueID]*runningVenue
	started bool
}

// New constructs a Supervisor. supported is each venue's own tradable
// universe, typically loaded via config.LoadUniverse from the checked-in
// universe file; it is intersected at Start time with the commission
// table's configured symbols. A venue absent from supported falls back to
// the commission-configured set, matching it 1:1 so the intersection is a
// no-op for that venue.
func New(commissions Commissions, supported map[model.VenueID][]model.Symbol, dialer venue.Dialer, sink venue.Sink, reg *metrics.Registry, log zerolog.Logger, obs venue.StateObserver) *Supervisor {
	return &Supervisor{
		commissions: commissions,
		supported:   supported,
		dialer:      dialer,
		sink:        sink,
		metrics:     reg,
		log:         log,
		running:     make(map[model.VenueID]*runningVenue),
		obs:         obs,
	}
}

// Start loads venues, constructs one adapter per venue, and launches their
// per-symbol tasks. Idempotent: a second call first stops, then restarts.
func (s *Supervisor) Start(ctx context.Context, venues []model.VenueID) {
	s.mu.Lock()
	alreadyStarted := s.started
	s.mu.Unlock()
	if alreadyStarted {
		s.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true

	for _, v := range venues {
		universe := s.commissions.SymbolsFor(v)
		if len(universe) == 0 {
			s.log.Warn().Str("venue", string(v)).Msg("supervisor: no configured symbols, skipping venue")
			continue
		}

		venueUniverse, ok := s.supported[v]
		if !ok || len(venueUniverse) == 0 {
			venueUniverse = universe
		}

		spec, err := venue.NewSpec(v, venueUniverse)
		if err != nil {
			s.log.Warn().Err(err).Str("venue", string(v)).Msg("supervisor: no adapter Spec for venue, skipping")
			continue
		}

		gate := newVenueBreaker(string(v), s.metrics)
		adapter := venue.NewAdapter(spec, s.dialer, s.sink, gate, s.log, s.obs)

		symbols := adapter.Symbols(universe)
		if len(symbols) == 0 {
			s.log.Warn().Str("venue", string(v)).Msg("supervisor: no usable symbols after intersecting with venue support, skipping")
			continue
		}

		adapter.Start(ctx, symbols)
		s.running[v] = &runningVenue{adapter: adapter}
	}
}

// Stop cancels every task and awaits completion with a 15s timeout per
// venue adapter.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = make(map[model.VenueID]*runningVenue)
	s.started = false
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, rv := range running {
		wg.Add(1)
		go func(rv *runningVenue) {
			defer wg.Done()
			rv.adapter.Close(shutdownGrace)
		}(rv)
	}
	wg.Wait()
}

// ActiveVenues returns the venues currently running, for diagnostics.
func (s *Supervisor) ActiveVenues() []model.VenueID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.VenueID, 0, len(s.running))
	for v := range s.running {
		out = append(out, v)
	}
	return out
}
