package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvRedisAddr     = "BOOKBOT_REDIS_ADDR"
	EnvGatewaySocket = "BOOKBOT_GATEWAY_SOCKET"
	EnvName          = "BOOKBOT_ENV"
	EnvSymbol        = "BOOKBOT_SYMBOL"
	EnvDryRun        = "BOOKBOT_DRY_RUN"
	EnvAPIKey        = "BINANCE_API_KEY"
	EnvAPISecret     = "BINANCE_API_SECRET"
)

// ApplyEnv loads a .env file when present and overlays the known variables.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Feed.RedisAddr = v
	}
	if v := os.Getenv(EnvGatewaySocket); v != "" {
		c.Gateway.Socket = v
		c.Paper.Socket = v
	}
	if v := os.Getenv(EnvName); v != "" {
		c.App.Env = v
	}
	if v := os.Getenv(EnvSymbol); v != "" {
		c.Feed.Symbol = v
	}
	if v := os.Getenv(EnvDryRun); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Gateway.DryRun = b
		}
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.History.APIKey = v
	}
	if v := os.Getenv(EnvAPISecret); v != "" {
		c.History.APISecret = v
	}
}

// ApplyDefaults fills zero values. Strategy tuning knobs stay zero so the
// strategy package can pick per-mode defaults.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bookbot"
	}
	if c.App.Env == "" {
		c.App.Env = EnvTestnet
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "json"
	}

	if c.Feed.RedisAddr == "" {
		c.Feed.RedisAddr = "127.0.0.1:6379"
	}
	if c.Feed.Symbol == "" {
		c.Feed.Symbol = "BTCUSDT"
	}
	if c.Feed.Depth == 0 {
		c.Feed.Depth = 20
	}
	if c.Feed.MissDelayMs == 0 {
		c.Feed.MissDelayMs = 50
	}
	if c.Feed.DuplicateDelayMs == 0 {
		c.Feed.DuplicateDelayMs = 5
	}
	if c.Feed.HeartbeatEvery == 0 {
		c.Feed.HeartbeatEvery = 10
	}
	if c.Feed.PanicPauseMs == 0 {
		c.Feed.PanicPauseMs = 500
	}

	if c.Gateway.Socket == "" {
		c.Gateway.Socket = "/tmp/quant_engine.sock"
	}
	if c.Gateway.Path == "" {
		c.Gateway.Path = "/api/order"
	}
	if c.Gateway.TimeoutMs == 0 {
		c.Gateway.TimeoutMs = 2000
	}

	if c.History.Interval == "" {
		c.History.Interval = "5m"
	}
	if c.History.Limit == 0 {
		c.History.Limit = 50
	}
	if c.History.ConnectTimeoutMs == 0 {
		c.History.ConnectTimeoutMs = 5000
	}
	if c.History.ReadTimeoutMs == 0 {
		c.History.ReadTimeoutMs = 10000
	}
	if c.History.MainnetURL == "" {
		c.History.MainnetURL = "https://fapi.binance.com"
	}
	if c.History.TestnetURL == "" {
		c.History.TestnetURL = "https://testnet.binancefuture.com"
	}

	if c.Strategy.Mode == "" {
		c.Strategy.Mode = "trend"
	}
	if c.Strategy.Params.Quantity == 0 {
		c.Strategy.Params.Quantity = 0.01
	}
	if c.Strategy.Params.Aggressiveness == nil {
		agg := 5.0
		c.Strategy.Params.Aggressiveness = &agg
	}
	if c.Strategy.Params.GatePolicy == "" {
		c.Strategy.Params.GatePolicy = "full"
	}

	if c.Risk.StopLoss == 0 {
		c.Risk.StopLoss = 0.02
	}
	if c.Risk.TakeProfit == 0 {
		c.Risk.TakeProfit = 0.05
	}
	if c.Risk.CooldownSecs == 0 {
		c.Risk.CooldownSecs = 10
	}
	if c.Risk.ExitRearmMs == 0 {
		c.Risk.ExitRearmMs = 1000
	}

	if c.Paper.StartingCash == 0 {
		c.Paper.StartingCash = 10000
	}
	if c.Paper.Socket == "" {
		c.Paper.Socket = c.Gateway.Socket
	}

	if c.BookFeed.Provider == "" {
		c.BookFeed.Provider = "stub"
	}
	if c.BookFeed.IntervalMs == 0 {
		c.BookFeed.IntervalMs = 100
	}
	if c.BookFeed.MainnetURL == "" {
		c.BookFeed.MainnetURL = "wss://fstream.binance.com"
	}
	if c.BookFeed.TestnetURL == "" {
		c.BookFeed.TestnetURL = "wss://stream.binancefuture.com"
	}
}
