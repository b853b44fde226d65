package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bookbot-go/internal/config"
	"bookbot-go/internal/exchange"
	"bookbot-go/internal/metrics"
	"bookbot-go/internal/paper"
	"bookbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	metricsFlag := flag.String("metrics", "", "metrics listen address, overrides paper.metrics_addr")
	ledgerSize := flag.Int("ledger", 1000, "fills kept in memory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info", "json")
		boot.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("app", "paper").Logger()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := exchange.NewRedisStore(cfg.Feed.RedisAddr, cfg.Feed.RedisDB, log)
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Feed.RedisAddr).Msg("redis unavailable")
	}

	account := paper.NewAccount(cfg.Paper.StartingCash, cfg.Paper.MaxPositionPerSymbol)
	gw := paper.NewGateway(account, paper.NewLedger(*ledgerSize), store, cfg.Feed.Symbol, log)

	if err := resetPosition(ctx, store, account, cfg.Feed.Symbol); err != nil {
		log.Fatal().Err(err).Msg("reset position")
	}

	g, gctx := errgroup.WithContext(ctx)
	metricsAddr := metrics.Addr(*metricsFlag, cfg.Paper.MetricsAddr)
	if metricsAddr != "" {
		srv := metrics.Serve(metricsAddr, log)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return gw.Serve(gctx, cfg.Paper.Socket)
	})

	log.Info().
		Float64("starting_cash", account.StartingCash()).
		Float64("max_position", cfg.Paper.MaxPositionPerSymbol).
		Str("socket", cfg.Paper.Socket).
		Msg("paper gateway starting")
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("paper gateway exited")
	}
	snap := account.Snapshot(nil)
	log.Info().Float64("cash", snap.Cash).Float64("realized", snap.RealizedPnL).Msg("shutdown complete")
}

// resetPosition publishes the fresh account's flat position so the engine never
// trades against a previous session's leftovers.
func resetPosition(ctx context.Context, store paper.PositionPublisher, account *paper.Account, symbol string) error {
	return store.PublishPosition(ctx, symbol, account.Position(symbol))
}
