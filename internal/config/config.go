package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	State     StateConfig     `mapstructure:"state"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminConfig     `mapstructure:"admin"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Referral  ReferralConfig  `mapstructure:"referral"`
}

type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	Mode                    string        `mapstructure:"mode"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "postgres" | "sqlite"
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              string        `mapstructure:"db"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type SQLiteConfig struct {
	Path        string `mapstructure:"path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type StateConfig struct {
	Backend string `mapstructure:"backend"` // "redis" | "memory"
}

type JWTConfig struct {
	SigningKey     string        `mapstructure:"signing_key"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type AdminConfig struct {
	UserIDs []string `mapstructure:"user_ids"`
}

// CORSConfig lists the storefront origins whose pages call the tracking and validation routes.
// An empty list or "*" admits any origin.
type CORSConfig struct {
	StorefrontOrigins []string      `mapstructure:"storefront_origins"`
	ExtraHeaders      []string      `mapstructure:"extra_headers"`
	MaxAge            time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type SMTPConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	FromEmail     string `mapstructure:"from_email"`
	FromName      string `mapstructure:"from_name"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
}

type NotifyConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	DedupeTTL   time.Duration `mapstructure:"dedupe_ttl"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type ProductConfig struct {
	ID         string `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	PriceCents int64  `mapstructure:"price_cents"`
}

type PricingConfig struct {
	Products []ProductConfig `mapstructure:"products"`
}

// ReferralConfig holds the externally tunable reward rules.
type ReferralConfig struct {
	RewardCap            int    `mapstructure:"reward_cap"`
	MilestoneInterval    int    `mapstructure:"milestone_interval"`
	MilestoneCap         int    `mapstructure:"milestone_cap"`
	CreditTier           string `mapstructure:"credit_tier"`
	CreditAmountCents    int64  `mapstructure:"credit_amount_cents"`
	CreditExpiryDays     int    `mapstructure:"credit_expiry_days"`
	MilestoneTier        string `mapstructure:"milestone_tier"`
	MilestoneExpiryDays  int    `mapstructure:"milestone_expiry_days"`
	RefereeIncentiveTier string `mapstructure:"referee_incentive_tier"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.graceful_shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.sqlite.path", "referralhub.db")
	v.SetDefault("database.redis.port", 6379)

	v.SetDefault("state.backend", "memory")
	v.SetDefault("cors.storefront_origins", []string{"*"})
	v.SetDefault("cors.max_age", 12*time.Hour)
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("rate_limit.rps", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.dedupe_ttl", 30*24*time.Hour)
	v.SetDefault("notify.send_timeout", 30*time.Second)

	v.SetDefault("referral.reward_cap", 5)
	v.SetDefault("referral.milestone_interval", 3)
	v.SetDefault("referral.milestone_cap", 5)
	v.SetDefault("referral.credit_tier", "purrify-12g")
	v.SetDefault("referral.credit_amount_cents", 0)
	v.SetDefault("referral.credit_expiry_days", 90)
	v.SetDefault("referral.milestone_tier", "purrify-50g")
	v.SetDefault("referral.milestone_expiry_days", 180)
	v.SetDefault("referral.referee_incentive_tier", "purrify-12g")
}

// Load reads an optional .env file, then config.yaml, overlays environment variables, and returns Config.
// A missing config file is not an error; defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment variable override: REFERRAL_REWARD_CAP -> referral.reward_cap
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
