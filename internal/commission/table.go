// Package commission implements a pure in-memory lookup of per-venue,
// per-symbol taker fee rates, loaded once at startup from a directory of
// JSON files (one per venue, named <venue>.json) and treated as immutable
// for the remainder of the process lifetime.
package commission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/arbiscan/internal/model"
	"github.com/sawpanic/arbiscan/internal/xerrors"
)

// symbolFees maps a fee-kind string ("taker_buy_rate", "taker_sell_rate",
// "taker_order_rate", ...) to its human-readable source string ("0.10%").
type symbolFees map[string]string

// venueFees maps canonical symbol -> symbolFees, as loaded from one
// <venue>.json file.
type venueFees map[model.Symbol]symbolFees

// Table is the immutable, concurrency-safe commission lookup.
type Table struct {
	log zerolog.Logger

	data map[model.VenueID]venueFees

	warnedMu sync.Mutex
	warned   map[string]bool // distinct malformed source strings already logged
}

// sideToKey maps a model.Side to the JSON fee-kind key it is sourced from.
func sideToKey(side model.Side) string {
	switch side {
	case model.SideTakerBuy:
		return "taker_buy_rate"
	case model.SideTakerSell:
		return "taker_sell_rate"
	case model.SideTakerOrder:
		return "taker_order_rate"
	default:
		return string(side)
	}
}

// Load walks dir for "*.json" files, one per venue, and builds an immutable
// Table. A malformed file is a ConfigurationError: fatal at startup.
func Load(dir string, log zerolog.Logger) (*Table, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, xerrors.New(xerrors.ConfigurationError, "", "", fmt.Errorf("glob commission dir %s: %w", dir, err))
	}

	t := &Table{
		log:    log,
		data:   make(map[model.VenueID]venueFees, len(entries)),
		warned: make(map[string]bool),
	}

	for _, path := range entries {
		venue := model.VenueID(strings.ToLower(strings.TrimSuffix(filepath.Base(path), ".json")))
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.New(xerrors.ConfigurationError, string(venue), "", fmt.Errorf("read %s: %w", path, err))
		}
		var bySymbol map[string]symbolFees
		if err := json.Unmarshal(raw, &bySymbol); err != nil {
			return nil, xerrors.New(xerrors.ConfigurationError, string(venue), "", fmt.Errorf("parse %s: %w", path, err))
		}
		vf := make(venueFees, len(bySymbol))
		for sym, fees := range bySymbol {
			vf[model.Symbol(strings.ToUpper(sym))] = fees
		}
		t.data[venue] = vf
	}

	return t, nil
}

// GetFee returns the configured rate for (venue, symbol, side), falling back
// from taker_sell to taker_order when the former is absent, and defaulting
// to 0 for anything unparseable or unconfigured.
func (t *Table) GetFee(venue model.VenueID, symbol model.Symbol, side model.Side) decimal.Decimal {
	fees := t.lookupFees(venue, symbol)
	if fees == nil {
		return decimal.Zero
	}

	raw, ok := fees[sideToKey(side)]
	if !ok && side == model.SideTakerSell {
		raw, ok = fees[sideToKey(model.SideTakerOrder)]
	}
	if !ok {
		return decimal.Zero
	}
	return t.parseRate(raw)
}

func (t *Table) lookupFees(venue model.VenueID, symbol model.Symbol) symbolFees {
	vf, ok := t.data[model.VenueID(strings.ToLower(string(venue)))]
	if !ok {
		return nil
	}
	return vf[symbol]
}

// parseRate implements the "x%" -> x/100 rule; anything else (including
// empty) is 0 and logged once per distinct malformed source string.
func (t *Table) parseRate(raw string) decimal.Decimal {
	trimmed := strings.TrimSpace(raw)
	if strings.HasSuffix(trimmed, "%") {
		numeric := strings.TrimSpace(strings.TrimSuffix(trimmed, "%"))
		if v, err := strconv.ParseFloat(numeric, 64); err == nil {
			return decimal.NewFromFloat(v).Div(decimal.NewFromInt(100))
		}
	}

	if trimmed != "" {
		t.warnedMu.Lock()
		if !t.warned[trimmed] {
			t.warned[trimmed] = true
			t.log.Warn().Str("raw", raw).Msg("commission: unparseable fee rate, treating as 0")
		}
		t.warnedMu.Unlock()
	}
	return decimal.Zero
}

// SymbolsFor returns the symbols configured for venue, sorted for
// deterministic iteration order.
func (t *Table) SymbolsFor(venue model.VenueID) []model.Symbol {
	vf, ok := t.data[model.VenueID(strings.ToLower(string(venue)))]
	if !ok {
		return nil
	}
	out := make([]model.Symbol, 0, len(vf))
	for sym := range vf {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Venues returns the configured venue ids, sorted.
func (t *Table) Venues() []model.VenueID {
	out := make([]model.VenueID, 0, len(t.data))
	for v := range t.data {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
