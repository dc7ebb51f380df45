package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "STOREFRONT_"

type Config struct {
	HTTP struct {
		Port            string        `koanf:"port"`
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
		RateLimitRPS    float64       `koanf:"rate_limit_rps"`
		RateLimitBurst  int           `koanf:"rate_limit_burst"`
	} `koanf:"http"`

	Log struct {
		Level       string `koanf:"level"`
		Development bool   `koanf:"development"`
		File        string `koanf:"file"`
	} `koanf:"log"`

	Store struct {
		// Driver is "postgres" or "memory".
		Driver   string `koanf:"driver"`
		DSN      string `koanf:"dsn"`
		Migrate  bool   `koanf:"migrate"`
		MaxConns int32  `koanf:"max_conns"`
		Currency string `koanf:"currency"`
	} `koanf:"store"`

	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		LockTTL  time.Duration `koanf:"lock_ttl"`
	} `koanf:"redis"`

	Kafka struct {
		Brokers            string `koanf:"brokers"`
		NotificationsTopic string `koanf:"notifications_topic"`
		EventsTopic        string `koanf:"events_topic"`
		GroupID            string `koanf:"group_id"`
	} `koanf:"kafka"`

	Gateway struct {
		BaseURL         string        `koanf:"base_url"`
		AccessToken     string        `koanf:"access_token"`
		Timeout         time.Duration `koanf:"timeout"`
		NotificationURL string        `koanf:"notification_url"`
		SuccessURL      string        `koanf:"success_url"`
		FailureURL      string        `koanf:"failure_url"`
		PendingURL      string        `koanf:"pending_url"`
	} `koanf:"gateway"`

	Shipping struct {
		OriginZip      string        `koanf:"origin_zip"`
		CarrierTimeout time.Duration `koanf:"carrier_timeout"`

		CarrierA struct {
			Enabled bool   `koanf:"enabled"`
			BaseURL string `koanf:"base_url"`
			APIKey  string `koanf:"api_key"`
		} `koanf:"carrier_a"`

		CarrierB struct {
			Enabled   bool   `koanf:"enabled"`
			BaseURL   string `koanf:"base_url"`
			TaxID     string `koanf:"tax_id"`
			Operation string `koanf:"operation"`
		} `koanf:"carrier_b"`

		CarrierC struct {
			Enabled  bool   `koanf:"enabled"`
			BaseURL  string `koanf:"base_url"`
			Username string `koanf:"username"`
			Password string `koanf:"password"`
		} `koanf:"carrier_c"`
	} `koanf:"shipping"`
}

func defaults() map[string]any {
	return map[string]any{
		"http.port":                 "8080",
		"http.read_timeout":         "10s",
		"http.write_timeout":        "15s",
		"http.shutdown_timeout":     "15s",
		"http.rate_limit_rps":       20,
		"http.rate_limit_burst":     40,
		"log.level":                 "info",
		"store.driver":              "postgres",
		"store.migrate":             true,
		"store.max_conns":           10,
		"store.currency":            "ARS",
		"redis.lock_ttl":            "30s",
		"kafka.notifications_topic": "payment-notifications",
		"kafka.events_topic":        "order-events",
		"kafka.group_id":            "storefront-orders",
		"gateway.timeout":           "5s",
		"shipping.carrier_timeout":  "4s",
	}
}

// LoadConfig reads defaults, then the optional YAML file at path, then STOREFRONT_*
// environment variables (nested keys separated by "__", e.g. STOREFRONT_STORE__DSN).
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn required for postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q unsupported", c.Store.Driver))
	}
	if c.Gateway.BaseURL == "" {
		errs = append(errs, errors.New("gateway.base_url required"))
	}
	if c.Gateway.AccessToken == "" {
		errs = append(errs, errors.New("gateway.access_token required"))
	}
	if len(strings.TrimSpace(c.Store.Currency)) != 3 {
		errs = append(errs, fmt.Errorf("store.currency %q must be an ISO 4217 code", c.Store.Currency))
	}
	if c.Shipping.CarrierA.Enabled && c.Shipping.CarrierA.BaseURL == "" {
		errs = append(errs, errors.New("shipping.carrier_a.base_url required when enabled"))
	}
	if c.Shipping.CarrierB.Enabled && c.Shipping.CarrierB.BaseURL == "" {
		errs = append(errs, errors.New("shipping.carrier_b.base_url required when enabled"))
	}
	if c.Shipping.CarrierC.Enabled && c.Shipping.CarrierC.BaseURL == "" {
		errs = append(errs, errors.New("shipping.carrier_c.base_url required when enabled"))
	}
	return errors.Join(errs...)
}

func (c *Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.Kafka.Brokers) != ""
}

func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}
