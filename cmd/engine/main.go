package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bookbot-go/internal/config"
	"bookbot-go/internal/engine"
	"bookbot-go/internal/exchange"
	"bookbot-go/internal/execution"
	"bookbot-go/internal/metrics"
	"bookbot-go/internal/strategy"
	"bookbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	metricsFlag := flag.String("metrics", "", "metrics listen address, overrides app.metrics_addr")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info", "json")
		boot.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("app", cfg.App.Name).Logger()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := exchange.NewRedisStore(cfg.Feed.RedisAddr, cfg.Feed.RedisDB, log)
	defer store.Close()

	history := exchange.NewKlineSource(
		cfg.History.BaseURL(cfg.App.Env),
		cfg.History.APIKey,
		cfg.History.APISecret,
		cfg.History.ConnectTimeout(),
		cfg.History.ReadTimeout(),
	)

	params, err := engine.StrategyParams(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("strategy params")
	}
	strat, err := strategy.Build(cfg.Strategy.Mode, params, history, log)
	if err != nil {
		log.Fatal().Err(err).Str("mode", cfg.Strategy.Mode).Msg("build strategy")
	}

	loop := engine.New(store, strat, newExecutor(cfg, log), engine.LoopOptions(cfg), log)

	g, gctx := errgroup.WithContext(ctx)
	metricsAddr := metrics.Addr(*metricsFlag, cfg.App.MetricsAddr)
	if metricsAddr != "" {
		srv := metrics.Serve(metricsAddr, log)
		log.Info().Str("addr", metricsAddr).Msg("metrics up")
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return loop.Run(gctx)
	})

	log.Info().
		Str("env", cfg.App.Env).
		Str("sym", cfg.Feed.Symbol).
		Str("strategy", strat.Name()).
		Bool("dry_run", cfg.Gateway.DryRun).
		Msg("engine starting")
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("engine exited")
	}
	log.Info().Msg("shutdown complete")
}

// newExecutor logs orders instead of sending them when dry run is on.
func newExecutor(cfg *config.Config, log zerolog.Logger) execution.Executor {
	if cfg.Gateway.DryRun {
		log.Warn().Msg("dry run: orders are logged, not sent")
		return execution.NewLogExecutor(log)
	}
	return execution.NewDispatcher(cfg.Gateway.Socket, cfg.Gateway.Path, cfg.Gateway.Timeout(), log)
}
