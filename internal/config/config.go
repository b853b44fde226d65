// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Environment names; anything other than mainnet routes to testnet endpoints.
const (
	EnvTestnet = "testnet"
	EnvMainnet = "mainnet"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env" validate:"oneof=testnet mainnet"`
	MetricsAddr string `yaml:"metrics_addr"` // engine; paper and bookfeed have their own
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format" validate:"omitempty,oneof=json console"`
}

// Feed describes the shared store the engine polls for book and position state.
type Feed struct {
	RedisAddr        string `yaml:"redis_addr" validate:"required"`
	RedisDB          int    `yaml:"redis_db" validate:"gte=0"`
	Symbol           string `yaml:"symbol" validate:"required"`
	Depth            int    `yaml:"depth" validate:"gte=1"`
	MissDelayMs      int    `yaml:"miss_delay_ms" validate:"gte=0"`
	DuplicateDelayMs int    `yaml:"duplicate_delay_ms" validate:"gte=0"`
	HeartbeatEvery   int    `yaml:"heartbeat_every" validate:"gte=1"`
	PanicPauseMs     int    `yaml:"panic_pause_ms" validate:"gte=0"`
}

// Gateway locates the execution gateway's local socket.
type Gateway struct {
	Socket    string `yaml:"socket" validate:"required_unless=DryRun true"`
	Path      string `yaml:"path"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"gte=1"`
	DryRun    bool   `yaml:"dry_run"`
}

// History configures the candle-history REST provider used to seed the trend indicator.
type History struct {
	Interval         string `yaml:"interval"`
	Limit            int    `yaml:"limit" validate:"gte=2,lte=1500"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms" validate:"gte=1"`
	ReadTimeoutMs    int    `yaml:"read_timeout_ms" validate:"gte=1"`
	MainnetURL       string `yaml:"mainnet_url" validate:"omitempty,url"`
	TestnetURL       string `yaml:"testnet_url" validate:"omitempty,url"`
	APIKey           string `yaml:"api_key"`
	APISecret        string `yaml:"api_secret"`
}

// StrategyParams groups tunable knobs for a strategy implementation.
// Zero values mean "use the strategy default".
type StrategyParams struct {
	Quantity          float64  `yaml:"quantity" validate:"gt=0"`
	Aggressiveness    *float64 `yaml:"aggressiveness" validate:"omitempty,gte=0"`
	GatePolicy        string   `yaml:"gate_policy" validate:"omitempty,oneof=full breach_only"`
	CooldownSecs      int      `yaml:"cooldown_secs" validate:"gte=0"`
	CheckIntervalSecs int      `yaml:"check_interval_secs" validate:"gte=0"`
	MACDFast          int      `yaml:"macd_fast" validate:"gte=0"`
	MACDSlow          int      `yaml:"macd_slow" validate:"gte=0"`
	MACDSignal        int      `yaml:"macd_signal" validate:"gte=0"`
	CrossoverOnly     bool     `yaml:"crossover_only"`
	OBILevels         int      `yaml:"obi_levels" validate:"gte=0"`
	OBIThreshold      float64  `yaml:"obi_threshold" validate:"omitempty,gt=0,lt=1"`
	TrendWindow       int      `yaml:"trend_window" validate:"gte=0"`
	SpreadThreshold   float64  `yaml:"spread_threshold" validate:"gte=0"`
	MaxPosition       float64  `yaml:"max_position" validate:"gte=0"`
}

// Strategy specifies which strategy is active along with the parameter bundle.
type Strategy struct {
	Mode   string         `yaml:"mode" validate:"oneof=trend trend_follow trend_follower macd obi obi_momentum spread spread_breakout"`
	Params StrategyParams `yaml:"params"`
}

// Risk encodes the capital-preservation thresholds.
type Risk struct {
	StopLoss            float64 `yaml:"stop_loss" validate:"gt=0,lt=1"`
	TakeProfit          float64 `yaml:"take_profit" validate:"gt=0,lt=1"`
	CooldownSecs        int     `yaml:"cooldown_secs" validate:"gte=0"`
	ExitRearmMs         int     `yaml:"exit_rearm_ms" validate:"gte=0"`
	MaxNotionalPerOrder float64 `yaml:"max_notional_per_order" validate:"gte=0"`
}

// Paper captures paper gateway settings.
type Paper struct {
	StartingCash         float64 `yaml:"starting_cash" validate:"gte=0"`
	MaxPositionPerSymbol float64 `yaml:"max_position_per_symbol" validate:"gte=0"`
	Socket               string  `yaml:"socket"`
	MetricsAddr          string  `yaml:"metrics_addr"`
}

// BookFeed configures the snapshot publisher.
type BookFeed struct {
	Provider    string `yaml:"provider" validate:"omitempty,oneof=stub binance"`
	IntervalMs  int    `yaml:"interval_ms" validate:"gte=0"`
	MainnetURL  string `yaml:"mainnet_url"`
	TestnetURL  string `yaml:"testnet_url"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Feed     Feed     `yaml:"feed"`
	Gateway  Gateway  `yaml:"gateway"`
	History  History  `yaml:"history"`
	Strategy Strategy `yaml:"strategy"`
	Risk     Risk     `yaml:"risk"`
	Paper    Paper    `yaml:"paper"`
	BookFeed BookFeed `yaml:"bookfeed"`
}

// Load reads a YAML file from disk, applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	return load(path, true)
}

// LoadFile is Load without environment overrides. Use it when the result is
// written back with Save, so one-off overrides never end up in the file.
func LoadFile(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, withEnv bool) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if withEnv {
		config.ApplyEnv()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks struct tags and returns an error wrapping ErrInvalid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	// engine, paper gateway and book feed run side by side and cannot share a port
	owners := make(map[string]string, 3)
	for _, m := range []struct{ key, addr string }{
		{"app.metrics_addr", c.App.MetricsAddr},
		{"paper.metrics_addr", c.Paper.MetricsAddr},
		{"bookfeed.metrics_addr", c.BookFeed.MetricsAddr},
	} {
		if m.addr == "" {
			continue
		}
		if prev, ok := owners[m.addr]; ok {
			return fmt.Errorf("%w: %s and %s both use %s", ErrInvalid, prev, m.key, m.addr)
		}
		owners[m.addr] = m.key
	}
	return nil
}

// Mainnet reports whether live endpoints are selected.
func (a App) Mainnet() bool { return a.Env == EnvMainnet }

// BaseURL returns the REST endpoint for env, defaulting to testnet.
func (h History) BaseURL(env string) string {
	if env == EnvMainnet {
		return h.MainnetURL
	}
	return h.TestnetURL
}

// ConnectTimeout is the dial budget for history requests.
func (h History) ConnectTimeout() time.Duration { return ms(h.ConnectTimeoutMs) }

// ReadTimeout is the response budget for history requests.
func (h History) ReadTimeout() time.Duration { return ms(h.ReadTimeoutMs) }

// StreamURL returns the websocket base for env, defaulting to testnet.
func (b BookFeed) StreamURL(env string) string {
	if env == EnvMainnet {
		return b.MainnetURL
	}
	return b.TestnetURL
}

// Interval is the stub provider's publish cadence.
func (b BookFeed) Interval() time.Duration { return ms(b.IntervalMs) }

// MissDelay is the pause after a poll that found no snapshot.
func (f Feed) MissDelay() time.Duration { return ms(f.MissDelayMs) }

// DuplicateDelay is the pause after a poll that found an already processed snapshot.
func (f Feed) DuplicateDelay() time.Duration { return ms(f.DuplicateDelayMs) }

// PanicPause is the pause after a recovered tick failure.
func (f Feed) PanicPause() time.Duration { return ms(f.PanicPauseMs) }

// Timeout bounds a single dispatch round trip.
func (g Gateway) Timeout() time.Duration { return ms(g.TimeoutMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// Cooldown returns the strategy's discretionary cooldown, zero meaning strategy default.
func (p StrategyParams) Cooldown() time.Duration { return secs(p.CooldownSecs) }

// CheckInterval returns the trend re-evaluation interval, zero meaning strategy default.
func (p StrategyParams) CheckInterval() time.Duration { return secs(p.CheckIntervalSecs) }

// Cooldown returns the entry block after a forced exit.
func (r Risk) Cooldown() time.Duration { return secs(r.CooldownSecs) }

// ExitRearm returns the minimum gap between two forced exits.
func (r Risk) ExitRearm() time.Duration { return ms(r.ExitRearmMs) }
