package opshttp

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/arbiscan/internal/metrics"
	"github.com/sawpanic/arbiscan/internal/model"
)

type fakePublisher struct {
	spatial []model.OpportunitySpatial
	cyclic  []model.OpportunityCyclic
}

func (f *fakePublisher) FindSpatialNow() []model.OpportunitySpatial { return f.spatial }
func (f *fakePublisher) FindCyclicNow() []model.OpportunityCyclic   { return f.cyclic }

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestNew_RejectsBusyAddress(t *testing.T) {
	ln := httptest.NewServer(http.NotFoundHandler())
	defer ln.Close()

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	_, err := New(DefaultConfig(ln.Listener.Addr().String()), &fakePublisher{}, reg, zerolog.Nop())
	require.Error(t, err)
}

func TestHealthzAndOpportunityHandlers(t *testing.T) {
	addr := freePort(t)
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	vol := decimal.NewFromFloat(100)
	pub := &fakePublisher{
		spatial: []model.OpportunitySpatial{{Pair: "BTC/USDT", BuyVenue: "bybit", SellVenue: "binance", VolumeUsd: &vol}},
	}

	srv, err := New(DefaultConfig(addr), pub, reg, zerolog.Nop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health["status"])

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/opportunities/spatial", nil)
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var opps []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opps))
	require.Len(t, opps, 1)
	require.Equal(t, "BYBIT", opps[0]["buy_exchange"])
	require.Equal(t, "100", opps[0]["volume_usd"])
}

func TestMetricsExposesCustomRegistry(t *testing.T) {
	addr := freePort(t)
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	reg.OpportunitiesFound.WithLabelValues("spatial").Add(7)

	srv, err := New(DefaultConfig(addr), &fakePublisher{}, reg, zerolog.Nop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "arbitrage_opportunities_total")
}

func TestNotFoundHandler(t *testing.T) {
	addr := freePort(t)
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	srv, err := New(DefaultConfig(addr), &fakePublisher{}, reg, zerolog.Nop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	addr := freePort(t)
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	srv, err := New(DefaultConfig(addr), &fakePublisher{}, reg, zerolog.Nop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.router.ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
