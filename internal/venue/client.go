package venue

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sawpanic/arbiscan/internal/model"
	"github.com/sawpanic/arbiscan/internal/xerrors"
)

const (
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	backoffPeriod = 5 * time.Second

	// connectRPS caps the whole adapter's dial rate against one venue, so a
	// mass disconnect across many symbols does not turn into a dial storm.
	connectRPS = 2.0
)

// ConnectGate lets the ingestion supervisor interpose a circuit
// breaker around this adapter's connection attempts, without venue needing
// to import gobreaker itself. Allow returning false means "don't even try";
// Report tells the gate the outcome of an attempt that was allowed.
type ConnectGate interface {
	Allow() bool
	Report(err error)
}

type openGate struct{}

func (openGate) Allow() bool    { return true }
func (openGate) Report(error)   {}

// Adapter drives one venue's per-symbol streaming tasks: resolve the
// operating symbol set, stream ticker and orderbook updates into the sink,
// and reconnect with backoff on any failure.
type Adapter struct {
	spec    Spec
	dialer  Dialer
	sink    Sink
	gate    ConnectGate
	limiter *RateLimiter
	log     zerolog.Logger
	obs     StateObserver

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAdapter constructs an Adapter. gate may be nil, in which case
// connection attempts are never throttled by a breaker.
func NewAdapter(spec Spec, dialer Dialer, sink Sink, gate ConnectGate, log zerolog.Logger, obs StateObserver) *Adapter {
	if gate == nil {
		gate = openGate{}
	}
	return &Adapter{
		spec:    spec,
		dialer:  dialer,
		sink:    sink,
		gate:    gate,
		limiter: NewRateLimiter(connectRPS),
		log:     log.With().Str("venue", string(spec.Name())).Logger(),
		obs:     obs,
	}
}

// Symbols resolves the operating symbol set: configured ∩ venue-supported.
func (a *Adapter) Symbols(configured []model.Symbol) []model.Symbol {
	supported := make(map[model.Symbol]bool, len(a.spec.SupportedSymbols()))
	for _, s := range a.spec.SupportedSymbols() {
		supported[s] = true
	}
	var out []model.Symbol
	for _, s := range configured {
		if supported[s] {
			out = append(out, s)
		}
	}
	return out
}

// Start launches one supervised task per (symbol, kind) and returns
// immediately; tasks run until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context, symbols []model.Symbol) {
	taskCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	var pending int
	for range symbols {
		pending += 2 // ticker + orderbook
	}
	finished := make(chan struct{}, pending)

	for _, sym := range symbols {
		go func(sym model.Symbol) {
			a.runStream(taskCtx, sym, StreamTicker)
			finished <- struct{}{}
		}(sym)
		go func(sym model.Symbol) {
			a.runStream(taskCtx, sym, StreamOrderbook)
			finished <- struct{}{}
		}(sym)
	}

	go func() {
		for i := 0; i < pending; i++ {
			<-finished
		}
		close(a.done)
	}()
}

// Close cancels all tasks and waits up to timeout for them to exit. A
// task that ignores cancellation is logged and abandoned rather than
// blocking the caller forever.
func (a *Adapter) Close(timeout time.Duration) {
	if a.cancel == nil {
		return
	}
	a.cancel()
	select {
	case <-a.done:
	case <-time.After(timeout):
		a.log.Error().Dur("timeout", timeout).Msg("adapter: tasks did not exit within shutdown grace, abandoning")
	}
}

// runStream is the per-(symbol,kind) supervised task: the full
// CONNECTING -> STREAMING -> (ERROR|CLOSED) -> BACKOFF -> CONNECTING loop.
func (a *Adapter) runStream(ctx context.Context, symbol model.Symbol, kind StreamKind) {
	for {
		if ctx.Err() != nil {
			a.transition(symbol, kind, StateClosed)
			return
		}

		a.transition(symbol, kind, StateConnecting)

		if !a.gate.Allow() {
			a.log.Warn().Str("symbol", string(symbol)).Str("kind", kind.String()).Msg("venue circuit open, skipping connect attempt")
			if !a.sleepOrDone(ctx, backoffPeriod) {
				a.transition(symbol, kind, StateClosed)
				return
			}
			a.transition(symbol, kind, StateBackoff)
			continue
		}

		err := a.streamOnce(ctx, symbol, kind)
		a.gate.Report(err)

		if ctx.Err() != nil {
			a.transition(symbol, kind, StateClosed)
			return
		}

		if err != nil {
			a.transition(symbol, kind, StateError)
			a.log.Warn().Err(err).Str("symbol", string(symbol)).Str("kind", kind.String()).Msg("stream error, backing off")
		}

		a.transition(symbol, kind, StateBackoff)
		if !a.sleepOrDone(ctx, backoffPeriod) {
			a.transition(symbol, kind, StateClosed)
			return
		}
	}
}

func (a *Adapter) sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// streamOnce connects, subscribes, and reads messages until error, close,
// or cancellation. It returns nil when ctx was cancelled or when the read
// ends with websocket.ErrCloseSent (the close was initiated from this side).
func (a *Adapter) streamOnce(ctx context.Context, symbol model.Symbol, kind StreamKind) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil // cancelled while queued for a connect token
	}
	conn, err := a.dialer.Dial(ctx, a.spec.DialURL(symbol, kind))
	if err != nil {
		return xerrors.New(xerrors.TransientStreamError, string(a.spec.Name()), string(symbol), err)
	}
	defer conn.Close()

	if payload := a.spec.SubscribePayload(symbol, kind); payload != nil {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return xerrors.New(xerrors.TransientStreamError, string(a.spec.Name()), string(symbol), err)
		}
	}

	a.transition(symbol, kind, StateStreaming)

	msgs := make(chan []byte)
	readErrs := make(chan error, 1)
	go func() {
		for {
			conn.SetReadDeadline(time.Now().Add(readDeadline))
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case msgs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrs:
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return xerrors.New(xerrors.TransientStreamError, string(a.spec.Name()), string(symbol), err)
		case data := <-msgs:
			a.handleMessage(symbol, kind, data)
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return xerrors.New(xerrors.TransientStreamError, string(a.spec.Name()), string(symbol), err)
			}
		}
	}
}

func (a *Adapter) handleMessage(symbol model.Symbol, kind StreamKind, data []byte) {
	tob, ok, err := a.spec.Parse(kind, data)
	if err != nil {
		a.log.Debug().Err(err).Str("symbol", string(symbol)).Msg("invalid message, dropping")
		return
	}
	if !ok {
		return // heartbeat/ack/other channel, not a terminal snapshot
	}
	if !tob.Valid() {
		return // missing/zero/negative bid or ask: dropped silently
	}
	tob.Venue = a.spec.Name()
	tob.Symbol = symbol
	tob.TimestampMs = time.Now().UnixMilli()

	if kind == StreamOrderbook {
		a.sink.PutOrderbook(tob.Venue, symbol, tob)
	} else {
		a.sink.PutTicker(tob.Venue, symbol, tob)
	}
}

func (a *Adapter) transition(symbol model.Symbol, kind StreamKind, state State) {
	if a.obs != nil {
		a.obs(a.spec.Name(), symbol, kind, state)
	}
}
