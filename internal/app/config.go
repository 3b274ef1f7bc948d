package app

import (
	"fmt"

	coreconfig "github.com/m3rciful/vinylbot/core/config"
	coredatabase "github.com/m3rciful/vinylbot/core/database"
	"github.com/m3rciful/vinylbot/internal/events"
	"github.com/m3rciful/vinylbot/internal/payment"
)

// Session store backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// ShopConfig describes the product on sale and intake behaviour.
type ShopConfig struct {
	ProductName string `yaml:"product_name" envconfig:"SHOP_PRODUCT_NAME"`
	PhotoURL    string `yaml:"photo_url" envconfig:"SHOP_PHOTO_URL"`
	// PriceTiers maps a quantity to its total price in minor units. Quantities
	// above the highest tier are priced linearly from the single-unit tier.
	PriceTiers map[int]int64 `yaml:"price_tiers"`
	// SessionBackend selects where intake sessions live: memory or redis.
	SessionBackend    string `yaml:"session_backend" envconfig:"SHOP_SESSION_BACKEND"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes" envconfig:"SHOP_SESSION_TTL_MINUTES"`
}

// RedisConfig holds connection settings for the redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// Config is the full application configuration. The reusable core sections
// sit inline at the top level of the YAML document.
type Config struct {
	Core coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Redis    RedisConfig         `yaml:"redis"`
	Shop     ShopConfig          `yaml:"shop"`
	Payment  payment.Config      `yaml:"payment"`
	Events   events.Config       `yaml:"events"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Core
}

// Load reads, normalizes, and validates the application configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Shop.ProductName == "" {
		cfg.Shop.ProductName = "Classic Vinyl Record"
	}
	if len(cfg.Shop.PriceTiers) == 0 {
		cfg.Shop.PriceTiers = map[int]int64{
			1: 2000,
			2: 4000,
			3: 6000,
			4: 8000,
			5: 10000,
		}
	}
	if cfg.Shop.SessionBackend == "" {
		cfg.Shop.SessionBackend = SessionBackendMemory
	}
	if cfg.Shop.SessionTTLMinutes <= 0 {
		cfg.Shop.SessionTTLMinutes = 30
	}
}

func validate(cfg *Config) error {
	switch cfg.Shop.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when shop.session_backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid shop.session_backend %q; allowed: memory, redis", cfg.Shop.SessionBackend)
	}
	return nil
}
