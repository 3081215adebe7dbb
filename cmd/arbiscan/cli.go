// cli.go assembles the host process: config, the commission table, the
// freshness cache, the per-venue adapters behind the ingestion supervisor,
// the two finders, the publisher, and the ops HTTP surface, wired by
// explicit constructor injection so tests can substitute fakes.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sawpanic/arbiscan/internal/cache"
	"github.com/sawpanic/arbiscan/internal/commission"
	"github.com/sawpanic/arbiscan/internal/config"
	"github.com/sawpanic/arbiscan/internal/finder"
	"github.com/sawpanic/arbiscan/internal/metrics"
	"github.com/sawpanic/arbiscan/internal/model"
	"github.com/sawpanic/arbiscan/internal/opshttp"
	"github.com/sawpanic/arbiscan/internal/publisher"
	"github.com/sawpanic/arbiscan/internal/supervisor"
	"github.com/sawpanic/arbiscan/internal/venue"
)

const version = "v0.1.0"

// Execute builds the root cobra command and runs it to completion.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:     "arbiscan",
		Short:   "arbiscan - real-time cross-exchange arbitrage scanner",
		Version: version,
	}

	root.AddCommand(newServeCmd(ctx))
	root.AddCommand(newScanCmd(ctx))

	return root.ExecuteContext(ctx)
}

// app holds every process-wide collaborator, constructed once in newApp and
// shared by explicit injection (never ambient/package-level state) into the
// supervisor, both finders, and the publisher.
type app struct {
	settings   config.Settings
	commission *commission.Table
	cache      *cache.Cache
	metrics    *metrics.Registry
	supervisor *supervisor.Supervisor
	spatial    *finder.SpatialFinder
	cyclic     *finder.CyclicFinder
	publisher  *publisher.Publisher
}

// newApp loads configuration, the commission table, and the venue universe
// file, then constructs every other collaborator against them. A failure
// here is a configuration error: fatal, process aborts.
func newApp() (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	commissions, err := commission.Load(settings.CommissionsDir, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("loading commission table: %w", err)
	}

	supported, err := config.LoadUniverse(settings.UniverseFile)
	if err != nil {
		return nil, fmt.Errorf("loading venue universe file: %w", err)
	}

	minProfit := decimal.NewFromFloat(settings.MinProfitPercent)

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	fc := cache.New(settings.CacheTTL(), log.Logger, reg)

	sup := supervisor.New(commissions, supported, venue.NewGorillaDialer(), fc, reg, log.Logger, nil)

	spatial := finder.NewSpatialFinder(fc, commissions, settings.EnabledVenues, minProfit)
	cyclic := finder.NewCyclicFinder(fc, commissions, settings.EnabledVenues, minProfit)
	pub := publisher.New(spatial, cyclic, reg, log.Logger, settings.PublisherPeriod())

	return &app{
		settings:   settings,
		commission: commissions,
		cache:      fc,
		metrics:    reg,
		supervisor: sup,
		spatial:    spatial,
		cyclic:     cyclic,
		publisher:  pub,
	}, nil
}

func newServeCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run ingestion, the publisher loop, and the ops HTTP surface until signalled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.cache.RunSweeper(sweepCtx, time.Minute)

	a.supervisor.Start(ctx, a.settings.EnabledVenues)
	log.Info().Strs("venues", venueStrings(a.supervisor.ActiveVenues())).Msg("ingestion supervisor started")

	pubCtx, stopPublisher := context.WithCancel(ctx)
	defer stopPublisher()
	go a.publisher.RunLoop(pubCtx)

	opsServer, err := opshttp.New(opshttp.DefaultConfig(a.settings.OpsHTTPAddr), a.publisher, a.metrics, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("ops http server could not bind, continuing without it")
	} else {
		go func() {
			if err := opsServer.Start(); err != nil {
				log.Error().Err(err).Msg("ops http server exited")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if opsServer != nil {
		_ = opsServer.Shutdown(shutdownCtx)
	}
	stopPublisher()
	a.supervisor.Stop()
	stopSweep()

	return nil
}

func newScanCmd(ctx context.Context) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Ingest briefly, then run a one-shot spatial and cyclic scan and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(ctx, duration)
		},
	}
	cmd.Flags().DurationVar(&duration, "warmup", 10*time.Second, "how long to let ingestion populate the cache before scanning")
	return cmd
}

func runScan(ctx context.Context, warmup time.Duration) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	warmCtx, cancel := context.WithTimeout(ctx, warmup)
	defer cancel()

	a.supervisor.Start(ctx, a.settings.EnabledVenues)
	<-warmCtx.Done()
	a.supervisor.Stop()

	spatial := a.publisher.FindSpatialNow()
	cyclic := a.publisher.FindCyclicNow()

	fmt.Printf("spatial opportunities: %d\n", len(spatial))
	for _, o := range spatial {
		fmt.Printf("  %s buy=%s@%s sell=%s@%s profit=%s%%\n",
			o.Pair, o.BuyVenue, o.BuyPrice, o.SellVenue, o.SellPrice, o.ProfitPercent)
	}

	fmt.Printf("cyclic opportunities: %d\n", len(cyclic))
	for _, o := range cyclic {
		fmt.Printf("  legs=%d profit=%s%%\n", len(o.Legs), o.ProfitPercent)
	}

	return nil
}

func venueStrings(venues []model.VenueID) []string {
	out := make([]string, len(venues))
	for i, v := range venues {
		out[i] = string(v)
	}
	return out
}
