package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"venue-billing-backend/internal/billing"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Billing    BillingConfig    `yaml:"billing"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	NodeID          int64         `yaml:"node_id"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableConstraints      bool   `yaml:"enable_constraints"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// BillingConfig selects billing models and the venue's local time.
type BillingConfig struct {
	TableModel billing.Model  `yaml:"table_model"`
	HallModel  billing.Model  `yaml:"hall_model"`
	Timezone   string         `yaml:"timezone"`
	Location   *time.Location `yaml:"-"`
	MaxRetries int            `yaml:"max_retries"`
}

// CatalogConfig lists the tables, halls, products and promocodes synced into the
// database. When File is set the catalog is re-read from it on every sync.
type CatalogConfig struct {
	File                string           `yaml:"file"`
	SyncIntervalSeconds int              `yaml:"sync_interval_seconds"`
	SyncInterval        time.Duration    `yaml:"-"`
	Resources           []ResourceEntry  `yaml:"resources"`
	Products            []ProductEntry   `yaml:"products"`
	Promocodes          []PromocodeEntry `yaml:"promocodes"`
}

// ResourceEntry is a table or a hall. Table names like "Hall A-3" place the table
// in hall "Hall A".
type ResourceEntry struct {
	ID                 string          `yaml:"id"`
	Name               string          `yaml:"name"`
	Kind               billing.Kind    `yaml:"kind"`
	FirstHourRate      decimal.Decimal `yaml:"first_hour_rate"`
	SubsequentHourRate decimal.Decimal `yaml:"subsequent_hour_rate"`
}

// ProductEntry is a sellable item.
type ProductEntry struct {
	ID    string          `yaml:"id"`
	Name  string          `yaml:"name"`
	Price decimal.Decimal `yaml:"price"`
	Stock int             `yaml:"stock"`
}

// PromocodeEntry mirrors billing.Promocode in YAML form.
type PromocodeEntry struct {
	Code            string               `yaml:"code"`
	Kind            billing.DiscountKind `yaml:"kind"`
	Value           decimal.Decimal      `yaml:"value"`
	AppliesTo       []billing.Component  `yaml:"applies_to"`
	PayHours        int                  `yaml:"pay_hours"`
	FreeHours       int                  `yaml:"free_hours"`
	TargetProductID string               `yaml:"target_product_id"`
	ItemMode        billing.ItemMode     `yaml:"item_mode"`
	Status          billing.PromoStatus  `yaml:"status"`
	ValidFrom       time.Time            `yaml:"valid_from"`
	ValidUntil      time.Time            `yaml:"valid_until"`
}

// Load reads the configuration from the given path. Values from a .env file or the
// environment override secrets and the database DSN.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadCatalog reads a standalone catalog file.
func LoadCatalog(path string) (CatalogConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CatalogConfig{}, err
	}
	var catalog CatalogConfig
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return CatalogConfig{}, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return catalog, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.NodeID <= 0 {
		cfg.Server.NodeID = 1
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = "postgres"
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Billing.TableModel == "" {
		cfg.Billing.TableModel = billing.ModelPerMemberTiered
	}
	if cfg.Billing.HallModel == "" {
		cfg.Billing.HallModel = billing.ModelPerHead
	}
	for _, m := range []billing.Model{cfg.Billing.TableModel, cfg.Billing.HallModel} {
		if !m.Valid() {
			return fmt.Errorf("unknown billing model %q", m)
		}
	}
	if cfg.Billing.Timezone == "" {
		cfg.Billing.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Billing.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Billing.Timezone, err)
	}
	cfg.Billing.Location = loc
	if cfg.Billing.MaxRetries <= 0 {
		cfg.Billing.MaxRetries = 3
	}

	if cfg.Catalog.SyncIntervalSeconds <= 0 {
		cfg.Catalog.SyncIntervalSeconds = 300
	}
	cfg.Catalog.SyncInterval = time.Duration(cfg.Catalog.SyncIntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	return nil
}
