// Package config defines the top-level configuration for the sniper bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SNIPER_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Solana   SolanaConfig   `toml:"solana"`
	Jupiter  JupiterConfig  `toml:"jupiter"`
	Trade    TradeConfig    `toml:"trade"`
	Risk     RiskConfig     `toml:"risk"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the Solana signing-key credentials. Exactly one source
// must be provided: a raw base58 secret key or an encrypted key file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SolanaConfig holds RPC endpoint and chain-level parameters.
type SolanaConfig struct {
	RPCURL          string   `toml:"rpc_url"`
	Commitment      string   `toml:"commitment"`
	MinSOLBalance   float64  `toml:"min_sol_balance"` // reserve floor kept out of any buy
	ConfirmTimeout  duration `toml:"confirm_timeout"`
	ConfirmInterval duration `toml:"confirm_interval"`
}

// JupiterConfig holds swap-aggregator API endpoints and slippage tolerance.
type JupiterConfig struct {
	QuoteHost   string `toml:"quote_host"`
	PriceHost   string `toml:"price_host"`
	SlippageBps int    `toml:"slippage_bps"`
}

// TradeConfig holds sizing and execution parameters.
type TradeConfig struct {
	AmountSOLGood      float64  `toml:"amount_sol_good"`
	AmountSOLWarning   float64  `toml:"amount_sol_warning"`
	AmountSOLDanger    float64  `toml:"amount_sol_danger"`
	MaxPortfolioSize   int      `toml:"max_portfolio_size"`
	MonitorInterval    duration `toml:"monitor_interval"`
	SellRetryAttempts  int      `toml:"sell_retry_attempts"`
	SellRetryDelay     duration `toml:"sell_retry_delay"`
	CloseAccountDelay  duration `toml:"close_account_delay"`
	AdmissionQueueSize int      `toml:"admission_queue_size"`
}

// ProfitTier is one rung of the GOOD-tier take-profit ladder.
type ProfitTier struct {
	ProfitPercent float64 `toml:"profit_percent"`
	SellPercent   float64 `toml:"sell_percent"`
}

// RiskConfig holds every exit-policy threshold.
type RiskConfig struct {
	TrailingStopPercent   float64       `toml:"trailing_stop_percent"`
	HardStopPercent       float64       `toml:"hard_stop_percent"` // negative
	StaleDangerMinutes    int           `toml:"stale_danger_minutes"`
	DeepLossPercentDanger float64       `toml:"deep_loss_percent_danger"` // negative, below hard stop
	TakeProfitGoodTiers   [3]ProfitTier `toml:"take_profit_good_tiers"`
	TakeProfitWarning     float64       `toml:"take_profit_warning"`
	TakeProfitDanger      float64       `toml:"take_profit_danger"`
	GlobalStopLossUSD     float64       `toml:"global_stop_loss_usd"` // negative
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for trade archival.
type S3Config struct {
	Enabled              bool   `toml:"enabled"`
	Endpoint             string `toml:"endpoint"`
	Region               string `toml:"region"`
	Bucket               string `toml:"bucket"`
	AccessKey            string `toml:"access_key"`
	SecretKey            string `toml:"secret_key"`
	UseSSL               bool   `toml:"use_ssl"`
	ForcePathStyle       bool   `toml:"force_path_style"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
}

// ServerConfig holds HTTP server parameters (health, metrics, admission API,
// websocket event stream).
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "1m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "30s" or "2m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:          "https://api.mainnet-beta.solana.com",
			Commitment:      "confirmed",
			MinSOLBalance:   0.05,
			ConfirmTimeout:  duration{60 * time.Second},
			ConfirmInterval: duration{2 * time.Second},
		},
		Jupiter: JupiterConfig{
			QuoteHost:   "https://quote-api.jup.ag",
			PriceHost:   "https://lite-api.jup.ag",
			SlippageBps: 100,
		},
		Trade: TradeConfig{
			AmountSOLGood:      0.1,
			AmountSOLWarning:   0.05,
			AmountSOLDanger:    0.02,
			MaxPortfolioSize:   5,
			MonitorInterval:    duration{60 * time.Second},
			SellRetryAttempts:  3,
			SellRetryDelay:     duration{5 * time.Second},
			CloseAccountDelay:  duration{30 * time.Second},
			AdmissionQueueSize: 64,
		},
		Risk: RiskConfig{
			TrailingStopPercent:   20,
			HardStopPercent:       -10,
			StaleDangerMinutes:    30,
			DeepLossPercentDanger: -25,
			TakeProfitGoodTiers: [3]ProfitTier{
				{ProfitPercent: 25, SellPercent: 33},
				{ProfitPercent: 60, SellPercent: 50},
				{ProfitPercent: 120, SellPercent: 100},
			},
			TakeProfitWarning: 30,
			TakeProfitDanger:  20,
			GlobalStopLossUSD: -200,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "sniperbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:              false,
			Endpoint:             "http://localhost:9000",
			Region:               "us-east-1",
			Bucket:               "sniperbot-data",
			ForcePathStyle:       true,
			ArchiveRetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "sell_failed", "global_stop"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true, // full engine: admission + monitor + server
	"monitor": true, // manage recovered positions only, admission disabled
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: exactly one credential source.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Solana
	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if c.Solana.MinSOLBalance < 0 {
		errs = append(errs, "solana: min_sol_balance must be >= 0")
	}

	// Jupiter
	if c.Jupiter.QuoteHost == "" {
		errs = append(errs, "jupiter: quote_host must not be empty")
	}
	if c.Jupiter.SlippageBps <= 0 {
		errs = append(errs, "jupiter: slippage_bps must be > 0")
	}

	// Trade
	if c.Trade.AmountSOLGood <= 0 || c.Trade.AmountSOLWarning <= 0 || c.Trade.AmountSOLDanger <= 0 {
		errs = append(errs, "trade: all tier amounts must be > 0")
	}
	if c.Trade.MaxPortfolioSize < 1 {
		errs = append(errs, "trade: max_portfolio_size must be >= 1")
	}
	if c.Trade.MonitorInterval.Duration <= 0 {
		errs = append(errs, "trade: monitor_interval must be > 0")
	}
	if c.Trade.SellRetryAttempts < 1 {
		errs = append(errs, "trade: sell_retry_attempts must be >= 1")
	}
	if c.Trade.AdmissionQueueSize < 1 {
		errs = append(errs, "trade: admission_queue_size must be >= 1")
	}

	// Risk
	if c.Risk.TrailingStopPercent <= 0 {
		errs = append(errs, "risk: trailing_stop_percent must be > 0")
	}
	if c.Risk.HardStopPercent >= 0 {
		errs = append(errs, "risk: hard_stop_percent must be negative")
	}
	if c.Risk.DeepLossPercentDanger >= c.Risk.HardStopPercent {
		errs = append(errs, "risk: deep_loss_percent_danger must be below hard_stop_percent")
	}
	if c.Risk.GlobalStopLossUSD >= 0 {
		errs = append(errs, "risk: global_stop_loss_usd must be negative")
	}
	prev := 0.0
	for i, tier := range c.Risk.TakeProfitGoodTiers {
		if tier.ProfitPercent <= prev {
			errs = append(errs, fmt.Sprintf("risk: take_profit_good_tiers[%d] must be ascending", i))
		}
		if tier.SellPercent <= 0 || tier.SellPercent > 100 {
			errs = append(errs, fmt.Sprintf("risk: take_profit_good_tiers[%d] sell_percent must be in (0,100]", i))
		}
		prev = tier.ProfitPercent
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
