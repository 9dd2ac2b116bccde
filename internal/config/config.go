package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/protega/cloudpay/server/internal/enclave"
)

type Config struct {
	Env      string `yaml:"env" default:"dev"` // "dev" | "prod"
	HTTPAddr string `yaml:"http_addr" default:":8080"`
	GRPCAddr string `yaml:"grpc_addr" default:":9090"`
	DBPath   string `yaml:"db_path" default:"./data/cloudpay.db"`

	// MasterKey seeds every record key.  It is never logged.
	MasterKey string `yaml:"master_key"`

	CORSOrigins []string `yaml:"cors_origins"`

	// DevCustomers are seeded as active identities when Env is dev.
	DevCustomers []string `yaml:"dev_customers,omitempty"`

	Checkout  CheckoutConfig  `yaml:"checkout"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Graph     GraphConfig     `yaml:"graph"`
	Reconcile ReconcileConfig `yaml:"reconcile"`

	// ProvidersFile optionally overlays Providers from YAML.
	ProvidersFile string `yaml:"providers_file,omitempty"`
}

type CheckoutConfig struct {
	TaxRate         string `yaml:"tax_rate" default:"0.08"`
	Currency        string `yaml:"currency" default:"usd"`
	DefaultProvider string `yaml:"default_provider" default:"stripe"`
}

type ProvidersConfig struct {
	Stripe StripeConfig `yaml:"stripe" mapstructure:"stripe"`
	Square SquareConfig `yaml:"square" mapstructure:"square"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key" mapstructure:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
	APIBase       string `yaml:"api_base,omitempty" mapstructure:"api_base"`
}

type SquareConfig struct {
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
	LocationID  string `yaml:"location_id" mapstructure:"location_id"`
	APIBase     string `yaml:"api_base,omitempty" mapstructure:"api_base"`
	Version     string `yaml:"version,omitempty" mapstructure:"version"`
}

// GraphConfig points at the optional Bolt ledger.  An empty URI disables it.
type GraphConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database" default:"neo4j"`
	Username string `yaml:"username" default:"neo4j"`
	Password string `yaml:"password"`
}

type ReconcileConfig struct {
	IntervalSeconds int `yaml:"interval_seconds" default:"60"` // 0 disables the poller
	GraceMinutes    int `yaml:"grace_minutes" default:"15"`
	BatchSize       int `yaml:"batch_size" default:"50"`
	Concurrency     int `yaml:"concurrency" default:"4"`
}

// Load reads .env if present, then the environment, then the optional
// providers file.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := FromEnv()
	if cfg.ProvidersFile != "" {
		if err := cfg.overlayProviders(cfg.ProvidersFile); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

func FromEnv() Config {
	var cfg Config
	defaults.MustSet(&cfg)

	cfg.Env = strings.ToLower(getenvDefault("CLOUDPAY_ENV", cfg.Env))
	if cfg.Env != "dev" && cfg.Env != "prod" {
		// fail-soft: treat unknown as dev
		cfg.Env = "dev"
	}
	cfg.HTTPAddr = getenvDefault("CLOUDPAY_HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = getenvDefault("CLOUDPAY_GRPC_ADDR", cfg.GRPCAddr)
	cfg.DBPath = getenvDefault("CLOUDPAY_DB_PATH", cfg.DBPath)
	cfg.MasterKey = strings.TrimSpace(os.Getenv("CLOUDPAY_MASTER_KEY"))
	cfg.CORSOrigins = splitCSV(os.Getenv("CLOUDPAY_CORS_ORIGINS"))
	cfg.DevCustomers = splitCSV(os.Getenv("CLOUDPAY_DEV_CUSTOMERS"))

	cfg.Checkout.TaxRate = getenvDefault("CLOUDPAY_TAX_RATE", cfg.Checkout.TaxRate)
	cfg.Checkout.Currency = strings.ToLower(getenvDefault("CLOUDPAY_CURRENCY", cfg.Checkout.Currency))
	cfg.Checkout.DefaultProvider = strings.ToLower(getenvDefault("CLOUDPAY_DEFAULT_PROVIDER", cfg.Checkout.DefaultProvider))

	cfg.Providers.Stripe = StripeConfig{
		SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		APIBase:       os.Getenv("STRIPE_API_BASE"),
	}
	cfg.Providers.Square = SquareConfig{
		AccessToken: os.Getenv("SQUARE_ACCESS_TOKEN"),
		LocationID:  os.Getenv("SQUARE_LOCATION_ID"),
		APIBase:     os.Getenv("SQUARE_API_BASE"),
		Version:     os.Getenv("SQUARE_VERSION"),
	}
	cfg.ProvidersFile = os.Getenv("CLOUDPAY_PROVIDERS_FILE")

	cfg.Graph.URI = os.Getenv("CLOUDPAY_NEO4J_URI")
	cfg.Graph.Database = getenvDefault("CLOUDPAY_NEO4J_DATABASE", cfg.Graph.Database)
	cfg.Graph.Username = getenvDefault("CLOUDPAY_NEO4J_USER", cfg.Graph.Username)
	cfg.Graph.Password = os.Getenv("CLOUDPAY_NEO4J_PASSWORD")

	cfg.Reconcile.IntervalSeconds = getenvInt("CLOUDPAY_RECONCILE_INTERVAL_SECONDS", cfg.Reconcile.IntervalSeconds)
	cfg.Reconcile.GraceMinutes = getenvInt("CLOUDPAY_RECONCILE_GRACE_MINUTES", cfg.Reconcile.GraceMinutes)
	cfg.Reconcile.BatchSize = getenvInt("CLOUDPAY_RECONCILE_BATCH_SIZE", cfg.Reconcile.BatchSize)
	cfg.Reconcile.Concurrency = getenvInt("CLOUDPAY_RECONCILE_CONCURRENCY", cfg.Reconcile.Concurrency)

	return cfg
}

// overlayProviders merges non-empty provider settings from a YAML file over
// what the environment supplied.
func (c *Config) overlayProviders(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("providers file %s: %w", path, err)
	}

	var file struct {
		Providers ProvidersConfig `mapstructure:"providers"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return fmt.Errorf("providers file %s: %w", path, err)
	}

	s, fs := &c.Providers.Stripe, file.Providers.Stripe
	overlay(&s.SecretKey, fs.SecretKey)
	overlay(&s.WebhookSecret, fs.WebhookSecret)
	overlay(&s.APIBase, fs.APIBase)

	q, fq := &c.Providers.Square, file.Providers.Square
	overlay(&q.AccessToken, fq.AccessToken)
	overlay(&q.LocationID, fq.LocationID)
	overlay(&q.APIBase, fq.APIBase)
	overlay(&q.Version, fq.Version)
	return nil
}

func overlay(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

var ErrInvalidTaxRate = errors.New("tax rate must be a decimal between 0 and 1")

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	if _, err := c.TaxRate(); err != nil {
		return err
	}
	if _, err := enclave.NewMasterSecret(c.MasterKey); err != nil {
		return fmt.Errorf("CLOUDPAY_MASTER_KEY: %w", err)
	}
	return nil
}

func (c Config) TaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.Checkout.TaxRate))
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidTaxRate, c.Checkout.TaxRate)
	}
	return rate, nil
}

// Redacted renders the effective configuration as YAML with secrets masked.
func (c Config) Redacted() (string, error) {
	if c.MasterKey != "" {
		c.MasterKey = "********"
	}
	c.Providers.Stripe.SecretKey = maskSecret(c.Providers.Stripe.SecretKey)
	c.Providers.Stripe.WebhookSecret = maskSecret(c.Providers.Stripe.WebhookSecret)
	c.Providers.Square.AccessToken = maskSecret(c.Providers.Square.AccessToken)
	c.Graph.Password = maskSecret(c.Graph.Password)

	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(out), nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) < 12 {
		return enclave.Mask(s, 0)
	}
	return enclave.Mask(s, 4)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
