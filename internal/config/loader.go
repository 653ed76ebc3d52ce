package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SNIPER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SNIPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SNIPER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SNIPER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SNIPER_WALLET_KEY_PASSWORD")

	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "SNIPER_SOLANA_RPC_URL")
	setStr(&cfg.Solana.Commitment, "SNIPER_SOLANA_COMMITMENT")
	setFloat64(&cfg.Solana.MinSOLBalance, "SNIPER_SOLANA_MIN_SOL_BALANCE")
	setDuration(&cfg.Solana.ConfirmTimeout, "SNIPER_SOLANA_CONFIRM_TIMEOUT")
	setDuration(&cfg.Solana.ConfirmInterval, "SNIPER_SOLANA_CONFIRM_INTERVAL")

	// ── Jupiter ──
	setStr(&cfg.Jupiter.QuoteHost, "SNIPER_JUPITER_QUOTE_HOST")
	setStr(&cfg.Jupiter.PriceHost, "SNIPER_JUPITER_PRICE_HOST")
	setInt(&cfg.Jupiter.SlippageBps, "SNIPER_JUPITER_SLIPPAGE_BPS")

	// ── Trade ──
	setFloat64(&cfg.Trade.AmountSOLGood, "SNIPER_TRADE_AMOUNT_SOL_GOOD")
	setFloat64(&cfg.Trade.AmountSOLWarning, "SNIPER_TRADE_AMOUNT_SOL_WARNING")
	setFloat64(&cfg.Trade.AmountSOLDanger, "SNIPER_TRADE_AMOUNT_SOL_DANGER")
	setInt(&cfg.Trade.MaxPortfolioSize, "SNIPER_TRADE_MAX_PORTFOLIO_SIZE")
	setDuration(&cfg.Trade.MonitorInterval, "SNIPER_TRADE_MONITOR_INTERVAL")
	setInt(&cfg.Trade.SellRetryAttempts, "SNIPER_TRADE_SELL_RETRY_ATTEMPTS")
	setDuration(&cfg.Trade.SellRetryDelay, "SNIPER_TRADE_SELL_RETRY_DELAY")
	setDuration(&cfg.Trade.CloseAccountDelay, "SNIPER_TRADE_CLOSE_ACCOUNT_DELAY")
	setInt(&cfg.Trade.AdmissionQueueSize, "SNIPER_TRADE_ADMISSION_QUEUE_SIZE")

	// ── Risk ──
	setFloat64(&cfg.Risk.TrailingStopPercent, "SNIPER_RISK_TRAILING_STOP_PERCENT")
	setFloat64(&cfg.Risk.HardStopPercent, "SNIPER_RISK_HARD_STOP_PERCENT")
	setInt(&cfg.Risk.StaleDangerMinutes, "SNIPER_RISK_STALE_DANGER_MINUTES")
	setFloat64(&cfg.Risk.DeepLossPercentDanger, "SNIPER_RISK_DEEP_LOSS_PERCENT_DANGER")
	setFloat64(&cfg.Risk.TakeProfitWarning, "SNIPER_RISK_TAKE_PROFIT_WARNING")
	setFloat64(&cfg.Risk.TakeProfitDanger, "SNIPER_RISK_TAKE_PROFIT_DANGER")
	setFloat64(&cfg.Risk.GlobalStopLossUSD, "SNIPER_RISK_GLOBAL_STOP_LOSS_USD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SNIPER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SNIPER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SNIPER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SNIPER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SNIPER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SNIPER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SNIPER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SNIPER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SNIPER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SNIPER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SNIPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SNIPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SNIPER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SNIPER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SNIPER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SNIPER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SNIPER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SNIPER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SNIPER_S3_REGION")
	setStr(&cfg.S3.Bucket, "SNIPER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SNIPER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SNIPER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SNIPER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SNIPER_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.ArchiveRetentionDays, "SNIPER_S3_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SNIPER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SNIPER_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SNIPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SNIPER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SNIPER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SNIPER_MODE")
	setStr(&cfg.LogLevel, "SNIPER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
