package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/arbiscan/internal/xerrors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ARBISCAN_MIN_PROFIT_PERCENT", "ARBISCAN_ENABLED_VENUES",
		"ARBISCAN_CACHE_TTL_SECONDS", "ARBISCAN_PUBLISHER_PERIOD_SECONDS",
		"ARBISCAN_COMMISSIONS_DIR", "ARBISCAN_OPS_HTTP_ADDR",
	} {
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	s, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0.01, s.MinProfitPercent)
	require.Equal(t, 60, s.CacheTTLSeconds)
	require.Equal(t, 5, s.PublisherPeriodSecs)
	require.ElementsMatch(t, []string{"binance", "kraken", "coinbase", "okx", "bybit", "mexc"}, venueStrings(s))
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARBISCAN_MIN_PROFIT_PERCENT", "0.5")
	t.Setenv("ARBISCAN_ENABLED_VENUES", "binance, kraken")
	t.Setenv("ARBISCAN_CACHE_TTL_SECONDS", "30")

	s, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0.5, s.MinProfitPercent)
	require.Equal(t, 30, s.CacheTTLSeconds)
	require.ElementsMatch(t, []string{"binance", "kraken"}, venueStrings(s))
}

func TestLoad_RejectsNegativeMinProfit(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARBISCAN_MIN_PROFIT_PERCENT", "-1")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadUniverse_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/universe.yaml"
	content := `
venues:
  - venue: binance
    symbols: ["BTC/USDT", "ETH/USDT"]
  - venue: kraken
    symbols: ["BTC/USDT"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	universe, err := LoadUniverse(path)
	require.NoError(t, err)
	require.Len(t, universe["binance"], 2)
	require.Len(t, universe["kraken"], 1)
	require.Equal(t, "BTC/USDT", string(universe["kraken"][0]))
}

func TestLoadUniverse_RejectsMalformedSymbol(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/universe.yaml"
	content := `
venues:
  - venue: binance
    symbols: ["BTCUSDT"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadUniverse(path)
	require.Error(t, err)
}

func TestLoadUniverse_MissingFileIsConfigurationError(t *testing.T) {
	_, err := LoadUniverse("/nonexistent/path/universe.yaml")
	require.ErrorIs(t, err, xerrors.Sentinel(xerrors.ConfigurationError))
}

func venueStrings(s Settings) []string {
	out := make([]string, 0, len(s.EnabledVenues))
	for _, v := range s.EnabledVenues {
		out = append(out, string(v))
	}
	return out
}
