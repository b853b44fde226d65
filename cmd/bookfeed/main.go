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
	"bookbot-go/internal/exchange"
	"bookbot-go/internal/metrics"
	"bookbot-go/internal/signal"
	"bookbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	metricsFlag := flag.String("metrics", "", "metrics listen address, overrides bookfeed.metrics_addr")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info", "json")
		boot.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("app", "bookfeed").Logger()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := exchange.NewRedisStore(cfg.Feed.RedisAddr, cfg.Feed.RedisDB, log)
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Feed.RedisAddr).Msg("redis unavailable")
	}

	feed := newFeed(cfg, log)
	books := make(chan signal.Book, 256)

	g, gctx := errgroup.WithContext(ctx)
	metricsAddr := metrics.Addr(*metricsFlag, cfg.BookFeed.MetricsAddr)
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
		defer close(books)
		return feed.Run(gctx, books)
	})
	g.Go(func() error {
		return exchange.Publish(gctx, books, store, log)
	})

	log.Info().Str("provider", cfg.BookFeed.Provider).Strs("symbols", feed.Symbols()).Msg("bookfeed starting")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("bookfeed exited")
	}
	log.Info().Msg("shutdown complete")
}

func newFeed(cfg *config.Config, log zerolog.Logger) *exchange.Feed {
	return exchange.NewFeed(cfg.BookFeed.Provider, []string{cfg.Feed.Symbol}, log,
		exchange.WithInterval(cfg.BookFeed.Interval()),
		exchange.WithDepth(cfg.Feed.Depth),
		exchange.WithStreamURL(cfg.BookFeed.StreamURL(cfg.App.Env)),
	)
}
