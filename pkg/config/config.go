package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config is read once at startup and never reloaded.
type Config struct {
	Fetch   FetchConfig
	Sweep   SweepConfig
	Alert   AlertConfig
	Cache   CacheConfig
	Refresh RefreshConfig
	DB      DBConfig
	Outbox  OutboxConfig
	Log     LogConfig
}

type FetchConfig struct {
	MinInterval       time.Duration `envconfig:"FETCH_MIN_INTERVAL" default:"5s"`
	JitterMin         time.Duration `envconfig:"FETCH_JITTER_MIN" default:"1s"`
	JitterMax         time.Duration `envconfig:"FETCH_JITTER_MAX" default:"3s"`
	MaxAttempts       int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"3"`
	Timeout           time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s"`
	BackoffBase       time.Duration `envconfig:"FETCH_BACKOFF_BASE" default:"1s"`
	BlockedBackoffMin time.Duration `envconfig:"FETCH_BLOCKED_BACKOFF_MIN" default:"10s"`
	BlockedBackoffMax time.Duration `envconfig:"FETCH_BLOCKED_BACKOFF_MAX" default:"60s"`
	CatalogBaseURL    string        `envconfig:"CATALOG_BASE_URL" default:"https://www.amazon.in/dp/"`
	AcceptLanguage    string        `envconfig:"FETCH_ACCEPT_LANGUAGE" default:"en-IN,en;q=0.9,hi;q=0.8"`
}

type SweepConfig struct {
	Cooldown     time.Duration `envconfig:"CHECK_COOLDOWN" default:"5m"`
	Interval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	Batch        int           `envconfig:"SWEEP_BATCH" default:"50"`
	ItemDelayMin time.Duration `envconfig:"SWEEP_ITEM_DELAY_MIN" default:"5s"`
	ItemDelayMax time.Duration `envconfig:"SWEEP_ITEM_DELAY_MAX" default:"10s"`
}

type AlertConfig struct {
	DropThreshold decimal.Decimal `envconfig:"PRICE_DROP_THRESHOLD" default:"5"`
	PriceMin      decimal.Decimal `envconfig:"PRICE_MIN" default:"10"`
	PriceMax      decimal.Decimal `envconfig:"PRICE_MAX" default:"1000000"`
	RestockRepeat int             `envconfig:"RESTOCK_REPEAT" default:"10"`
	RestockDelay  time.Duration   `envconfig:"RESTOCK_REPEAT_DELAY" default:"2s"`
}

type CacheConfig struct {
	TTL       time.Duration `envconfig:"CACHE_TTL" default:"300s"`
	Backend   string        `envconfig:"CACHE_BACKEND" default:"memory"`
	RedisAddr string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	KeyPrefix string        `envconfig:"CACHE_KEY_PREFIX" default:"stockwatch:result:"`
}

type RefreshConfig struct {
	PerMinute int `envconfig:"OWNER_REFRESH_PER_MINUTE" default:"5"`
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"stockwatch"`
	Password string `envconfig:"DB_PASSWORD"`
	DBName   string `envconfig:"DB_NAME" default:"stockwatch"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"5"`
}

type OutboxConfig struct {
	Dir string `envconfig:"OUTBOX_DIR"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to process env config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Fetch.MaxAttempts < 1:
		return errors.New("FETCH_MAX_ATTEMPTS must be at least 1")
	case c.Fetch.JitterMax < c.Fetch.JitterMin:
		return errors.New("FETCH_JITTER_MAX must not be below FETCH_JITTER_MIN")
	case c.Fetch.BlockedBackoffMax < c.Fetch.BlockedBackoffMin:
		return errors.New("FETCH_BLOCKED_BACKOFF_MAX must not be below FETCH_BLOCKED_BACKOFF_MIN")
	case c.Sweep.Interval <= 0:
		return errors.New("SWEEP_INTERVAL must be positive")
	case c.Sweep.Batch < 1:
		return errors.New("SWEEP_BATCH must be at least 1")
	case c.Sweep.ItemDelayMax < c.Sweep.ItemDelayMin:
		return errors.New("SWEEP_ITEM_DELAY_MAX must not be below SWEEP_ITEM_DELAY_MIN")
	case c.Alert.PriceMax.LessThan(c.Alert.PriceMin):
		return errors.New("PRICE_MAX must not be below PRICE_MIN")
	case c.Alert.RestockRepeat < 1:
		return errors.New("RESTOCK_REPEAT must be at least 1")
	case c.Cache.Backend != CacheMemory && c.Cache.Backend != CacheRedis:
		return errors.Newf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	case c.Refresh.PerMinute < 1:
		return errors.New("OWNER_REFRESH_PER_MINUTE must be at least 1")
	}
	return nil
}

// NewTestConfig mirrors the defaults with zero delays so tests never sleep.
func NewTestConfig() Config {
	return Config{
		Fetch: FetchConfig{
			MaxAttempts:    3,
			Timeout:        5 * time.Second,
			CatalogBaseURL: "https://www.amazon.in/dp/",
		},
		Sweep: SweepConfig{
			Cooldown: 5 * time.Minute,
			Interval: time.Minute,
			Batch:    50,
		},
		Alert: AlertConfig{
			DropThreshold: decimal.NewFromInt(5),
			PriceMin:      decimal.NewFromInt(10),
			PriceMax:      decimal.NewFromInt(1_000_000),
			RestockRepeat: 10,
		},
		Cache: CacheConfig{
			TTL:       300 * time.Second,
			Backend:   CacheMemory,
			RedisAddr: "localhost:6379",
			KeyPrefix: "stockwatch-test:result:",
		},
		Refresh: RefreshConfig{PerMinute: 5},
		DB: DBConfig{
			Host:     "localhost",
			Port:     "15433",
			User:     "test",
			Password: "test",
			DBName:   "stockwatch_test",
			SSLMode:  "disable",
			MaxConns: 2,
		},
		Log: LogConfig{Level: "error", Format: "text"},
	}
}
