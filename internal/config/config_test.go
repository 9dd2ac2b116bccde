package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/protega/cloudpay/server/internal/config"
)

var masterKey = strings.Repeat("s", 64)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := config.FromEnv()

	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
		t.Errorf("addrs = %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.DBPath != "./data/cloudpay.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Checkout.TaxRate != "0.08" || cfg.Checkout.Currency != "usd" || cfg.Checkout.DefaultProvider != "stripe" {
		t.Errorf("checkout defaults = %+v", cfg.Checkout)
	}
	if cfg.Reconcile.GraceMinutes != 15 || cfg.Reconcile.BatchSize != 50 || cfg.Reconcile.Concurrency != 4 {
		t.Errorf("reconcile defaults = %+v", cfg.Reconcile)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CLOUDPAY_ENV", "PROD")
	t.Setenv("CLOUDPAY_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("CLOUDPAY_DEFAULT_PROVIDER", "Square")
	t.Setenv("CLOUDPAY_RECONCILE_BATCH_SIZE", "-3")
	t.Setenv("CLOUDPAY_RECONCILE_CONCURRENCY", "8")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_abc")

	cfg := config.FromEnv()

	if cfg.Env != "prod" {
		t.Errorf("Env = %q, want prod", cfg.Env)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.Checkout.DefaultProvider != "square" {
		t.Errorf("DefaultProvider = %q", cfg.Checkout.DefaultProvider)
	}
	if cfg.Reconcile.BatchSize != 50 {
		t.Errorf("negative batch size should fall back, got %d", cfg.Reconcile.BatchSize)
	}
	if cfg.Reconcile.Concurrency != 8 {
		t.Errorf("Concurrency = %d", cfg.Reconcile.Concurrency)
	}
	if cfg.Providers.Stripe.SecretKey != "sk_test_abc" {
		t.Errorf("stripe key = %q", cfg.Providers.Stripe.SecretKey)
	}
}

func TestFromEnv_UnknownEnvFallsBackToDev(t *testing.T) {
	t.Setenv("CLOUDPAY_ENV", "staging")
	if got := config.FromEnv().Env; got != "dev" {
		t.Errorf("Env = %q, want dev", got)
	}
}

func TestLoad_ProvidersFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	yaml := `providers:
  stripe:
    webhook_secret: whsec_file
  square:
    access_token: sq_file
    location_id: L123
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CLOUDPAY_MASTER_KEY", masterKey)
	t.Setenv("CLOUDPAY_PROVIDERS_FILE", path)
	t.Setenv("STRIPE_SECRET_KEY", "sk_env")
	t.Setenv("SQUARE_LOCATION_ID", "L_env")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Stripe.SecretKey != "sk_env" {
		t.Errorf("empty file value must not clear env: %q", cfg.Providers.Stripe.SecretKey)
	}
	if cfg.Providers.Stripe.WebhookSecret != "whsec_file" {
		t.Errorf("webhook secret = %q", cfg.Providers.Stripe.WebhookSecret)
	}
	if cfg.Providers.Square.AccessToken != "sq_file" || cfg.Providers.Square.LocationID != "L123" {
		t.Errorf("square = %+v", cfg.Providers.Square)
	}
}

func TestLoad_MissingProvidersFile(t *testing.T) {
	t.Setenv("CLOUDPAY_MASTER_KEY", masterKey)
	t.Setenv("CLOUDPAY_PROVIDERS_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := config.Load(); err == nil {
		t.Fatal("expected an error for a missing providers file")
	}
}

func TestValidate(t *testing.T) {
	cfg := config.FromEnv()
	cfg.MasterKey = masterKey
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.Checkout.TaxRate = "1.5"
	if err := cfg.Validate(); !errors.Is(err, config.ErrInvalidTaxRate) {
		t.Errorf("tax 1.5: err = %v, want ErrInvalidTaxRate", err)
	}

	cfg.Checkout.TaxRate = "0.0725"
	cfg.MasterKey = "short"
	if err := cfg.Validate(); err == nil {
		t.Error("expected short master key to fail")
	}
}

func TestRedacted_MasksSecrets(t *testing.T) {
	cfg := config.FromEnv()
	cfg.MasterKey = masterKey
	cfg.Providers.Stripe.SecretKey = "sk_live_0123456789abcd"
	cfg.Graph.Password = "hunter2"

	out, err := cfg.Redacted()
	if err != nil {
		t.Fatalf("Redacted: %v", err)
	}
	for _, secret := range []string{masterKey, "sk_live_0123456789abcd", "hunter2"} {
		if strings.Contains(out, secret) {
			t.Errorf("output leaks %q", secret)
		}
	}
	if !strings.Contains(out, "abcd") {
		t.Error("expected the last four characters of the stripe key")
	}
	if !strings.Contains(out, "http_addr:") || !strings.Contains(out, "8080") {
		t.Errorf("missing non-secret settings:\n%s", out)
	}
}
