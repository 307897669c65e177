package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envKey        = "OBSYNC_KEY"
	envSecret     = "OBSYNC_SECRET"
	envPassphrase = "OBSYNC_PASSPHRASE"
	envProducts   = "OBSYNC_PRODUCTS"
	envLogLevel   = "OBSYNC_LOG_LEVEL"
)

type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Sync     SyncConfig     `yaml:"sync"`
	Rest     RestConfig     `yaml:"rest"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type ExchangeConfig struct {
	WSURL      string   `yaml:"ws_url"`
	RestURL    string   `yaml:"rest_url"`
	Products   []string `yaml:"products"`
	Channels   []string `yaml:"channels"`
	Key        string   `yaml:"key"`
	Secret     string   `yaml:"secret"`
	Passphrase string   `yaml:"passphrase"`
}

// Authenticated reports whether the feed subscription should be signed.
func (e ExchangeConfig) Authenticated() bool {
	return e.Key != "" && e.Secret != "" && e.Passphrase != ""
}

type SyncConfig struct {
	MaxPending    int  `yaml:"max_pending"`
	CheckSequence bool `yaml:"check_sequence"`
	AutoResync    bool `yaml:"auto_resync"`
	OutQueueSize  int  `yaml:"out_queue_size"`
}

type RestConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

func Default() Config {
	var c Config
	c.Exchange.WSURL = "wss://ws-feed.exchange.coinbase.com"
	c.Exchange.RestURL = "https://api.exchange.coinbase.com"
	c.Exchange.Products = []string{"BTC-USD"}
	c.Exchange.Channels = []string{"full", "heartbeat"}
	c.Sync.MaxPending = 100000
	c.Sync.CheckSequence = true
	c.Sync.AutoResync = true
	c.Sync.OutQueueSize = 40000
	c.Rest.Timeout = 10 * time.Second
	c.Rest.Retries = 3
	c.Rest.Backoff = 500 * time.Millisecond
	c.Server.Addr = ":8080"
	c.Logging.Level = "info"
	c.Logging.Format = "json"
	c.Logging.MaxSizeMB = 100
	c.Logging.MaxBackups = 5
	c.Logging.MaxAgeDays = 14
	c.Kafka.Topic = "orderbook-messages"
	c.Kafka.BatchTimeout = 50 * time.Millisecond

	return c
}

// Load reads the YAML file at path over the defaults, applies environment overrides and
// validates the result. An empty path loads the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Exchange.WSURL, "ws://") && !strings.HasPrefix(c.Exchange.WSURL, "wss://") {
		return fmt.Errorf("invalid exchange ws url: %q", c.Exchange.WSURL)
	}

	if !strings.HasPrefix(c.Exchange.RestURL, "http://") && !strings.HasPrefix(c.Exchange.RestURL, "https://") {
		return fmt.Errorf("invalid exchange rest url: %q", c.Exchange.RestURL)
	}

	if len(c.Exchange.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	if len(c.Exchange.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}

	if c.Sync.MaxPending < 0 {
		return fmt.Errorf("max_pending must not be negative")
	}

	if c.Rest.Timeout <= 0 {
		return fmt.Errorf("rest timeout must be positive")
	}

	if c.Rest.Retries < 0 {
		return fmt.Errorf("rest retries must not be negative")
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka needs brokers and a topic when enabled")
	}

	return nil
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv(envKey); v != "" {
		cfg.Exchange.Key = v
	}

	if v := os.Getenv(envSecret); v != "" {
		cfg.Exchange.Secret = v
	}

	if v := os.Getenv(envPassphrase); v != "" {
		cfg.Exchange.Passphrase = v
	}

	if v := os.Getenv(envProducts); v != "" {
		cfg.Exchange.Products = splitCSV(v)
	}

	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

func splitCSV(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
