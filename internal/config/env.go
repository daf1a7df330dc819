package config

import (
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	TransportWS  = "ws"
	TransportFIX = "fix"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	Feed     FeedConfig     `envPrefix:"FEED_"`
	FIX      FIXConfig      `envPrefix:"FIX_"`
	Ladder   LadderConfig   `envPrefix:"LADDER_"`
	Depth    DepthConfig    `envPrefix:"DEPTH_"`
	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Telegram TelegramConfig `envPrefix:"TELEGRAM_"`
	LogLevel string         `env:"LOG_LEVEL" envDefault:"info"`
}

type FeedConfig struct {
	Transport        string        `env:"TRANSPORT" envDefault:"ws"`
	URL              string        `env:"URL" envDefault:"ws://localhost:8000/ws"`
	Instrument       string        `env:"INSTRUMENT" envDefault:"BTC-USD"`
	BackoffInitial   time.Duration `env:"BACKOFF_INITIAL" envDefault:"500ms"`
	BackoffMax       time.Duration `env:"BACKOFF_MAX" envDefault:"30s"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"5s"`
}

type FIXConfig struct {
	Config   string `env:"CONFIG" envDefault:"config/quickfix.cfg"`
	Symbol   string `env:"SYMBOL" envDefault:"BTC-USD"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

type LadderConfig struct {
	Depth int `env:"DEPTH" envDefault:"10"`
}

type DepthConfig struct {
	MergeDuplicates bool `env:"MERGE_DUPLICATES" envDefault:"false"`
}

type HTTPConfig struct {
	Addr string `env:"ADDR" envDefault:":8080"`
}

// RedisConfig is optional; an empty URL disables the latest-view sink.
type RedisConfig struct {
	URL      string        `env:"URL"`
	Password string        `env:"PASSWORD"`
	TTL      time.Duration `env:"TTL" envDefault:"30s"`
}

type TelegramConfig struct {
	BotToken string `env:"BOT_TOKEN"`
	ChatID   int64  `env:"CHAT_ID"`
}

// Enabled reports whether both telegram credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// LoadEnv loads variables from a .env file in the working directory if present.
func LoadEnv() bool {
	return godotenv.Load(".env") == nil
}

// Load parses the environment into a Config. Call LoadEnv first to pick up .env.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Feed.Transport {
	case TransportWS:
		u, err := url.Parse(c.Feed.URL)
		if err != nil {
			return errors.Wrapf(err, "invalid FEED_URL %q", c.Feed.URL)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return errors.Errorf("FEED_URL must use ws or wss scheme, got %q", u.Scheme)
		}
	case TransportFIX:
		if c.FIX.Config == "" {
			return errors.New("FIX_CONFIG is required for fix transport")
		}
		if c.FIX.Symbol == "" {
			return errors.New("FIX_SYMBOL is required for fix transport")
		}
	default:
		return errors.Errorf("unknown FEED_TRANSPORT %q", c.Feed.Transport)
	}

	if c.Feed.BackoffInitial <= 0 {
		return errors.New("FEED_BACKOFF_INITIAL must be positive")
	}
	if c.Feed.BackoffMax < c.Feed.BackoffInitial {
		return errors.New("FEED_BACKOFF_MAX must be >= FEED_BACKOFF_INITIAL")
	}
	if c.Ladder.Depth < 1 {
		return errors.Errorf("LADDER_DEPTH must be >= 1, got %d", c.Ladder.Depth)
	}
	if c.Redis.URL != "" && c.Redis.TTL < time.Second {
		return errors.New("REDIS_TTL must be at least 1s")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}
