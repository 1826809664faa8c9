package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
sale:
  token_price_nano_usd: 120000
  min_purchase_cents: 2500
  multi_purchase: true
vesting:
  immediate_bps: 1500
  cliff_duration: 2160h
bonus:
  flat_bps: 750
  tiers:
    - min_cents: 100000
      bps: 400
fraud:
  reject_score: 90
gateways:
  colexpay:
    base_url: https://colexpay.test
sweeper:
  interval: 90s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Sale.TokenPriceNanoUSD != 120_000 {
		t.Fatalf("unexpected token price: %d", cfg.Sale.TokenPriceNanoUSD)
	}
	if cfg.Sale.MinPurchaseCents != 2_500 {
		t.Fatalf("unexpected min purchase: %d", cfg.Sale.MinPurchaseCents)
	}
	if !cfg.Sale.MultiPurchase {
		t.Fatal("multi_purchase override lost")
	}
	if cfg.Vesting.ImmediateBps != 1500 {
		t.Fatalf("unexpected immediate bps: %d", cfg.Vesting.ImmediateBps)
	}
	if cfg.Vesting.CliffDuration != 2160*time.Hour {
		t.Fatalf("unexpected cliff: %s", cfg.Vesting.CliffDuration)
	}
	if cfg.Bonus.FlatBps != 750 {
		t.Fatalf("unexpected flat bonus: %d", cfg.Bonus.FlatBps)
	}
	if len(cfg.Bonus.Tiers) != 1 || cfg.Bonus.Tiers[0].Bps != 400 {
		t.Fatalf("unexpected bonus tiers: %+v", cfg.Bonus.Tiers)
	}
	if cfg.Fraud.RejectScore != 90 {
		t.Fatalf("unexpected reject score: %d", cfg.Fraud.RejectScore)
	}
	if cfg.Gateways.Colexpay.BaseURL != "https://colexpay.test" {
		t.Fatalf("unexpected colexpay base url: %s", cfg.Gateways.Colexpay.BaseURL)
	}
	if cfg.Sweeper.Interval != 90*time.Second {
		t.Fatalf("unexpected sweeper interval: %s", cfg.Sweeper.Interval)
	}

	if cfg.Sale.MaxPurchaseCents != 5_000_000 {
		t.Fatalf("max purchase default should stay 5000000, got %d", cfg.Sale.MaxPurchaseCents)
	}
	if cfg.Vesting.VestingDuration != 540*24*time.Hour {
		t.Fatalf("vesting duration default should stay 540d, got %s", cfg.Vesting.VestingDuration)
	}
	if cfg.Fraud.VerifyScore != 50 {
		t.Fatalf("verify score default should stay 50, got %d", cfg.Fraud.VerifyScore)
	}
	if cfg.Gateways.EventRetention != 90*24*time.Hour {
		t.Fatalf("event retention default should stay 90d, got %s", cfg.Gateways.EventRetention)
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config with missing file: %v", err)
	}

	if cfg.Sale.TokenPriceNanoUSD != 80_000 {
		t.Fatalf("unexpected default token price: %d", cfg.Sale.TokenPriceNanoUSD)
	}
	if cfg.Sale.PaymentWindow != time.Hour {
		t.Fatalf("unexpected default payment window: %s", cfg.Sale.PaymentWindow)
	}
	if cfg.Vesting.ImmediateBps != 2000 {
		t.Fatalf("unexpected default immediate bps: %d", cfg.Vesting.ImmediateBps)
	}
	if cfg.Vesting.CliffDuration != 90*24*time.Hour {
		t.Fatalf("unexpected default cliff: %s", cfg.Vesting.CliffDuration)
	}
	if len(cfg.Bonus.Tiers) != 3 {
		t.Fatalf("unexpected default tier count: %d", len(cfg.Bonus.Tiers))
	}
	if cfg.Fraud.RecentPurchaseLimit != 3 || cfg.Fraud.WalletsPerIPLimit != 3 {
		t.Fatalf("unexpected default fraud limits: %+v", cfg.Fraud)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected default http addr: %s", cfg.HTTP.Addr)
	}
}

func TestEnvOverridesBeatYAML(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TOKEN_PRICE_NANO_USD", "200000")
	t.Setenv("MULTI_PURCHASE", "true")
	t.Setenv("VESTING_CLIFF", "720h")
	t.Setenv("COLEXPAY_IPN_SECRET", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Sale.TokenPriceNanoUSD != 200_000 {
		t.Fatalf("env token price override lost: %d", cfg.Sale.TokenPriceNanoUSD)
	}
	if !cfg.Sale.MultiPurchase {
		t.Fatal("env multi_purchase override lost")
	}
	if cfg.Vesting.CliffDuration != 720*time.Hour {
		t.Fatalf("env cliff override lost: %s", cfg.Vesting.CliffDuration)
	}
	if cfg.Gateways.Colexpay.IPNSecret != "from-env" {
		t.Fatalf("env ipn secret override lost: %s", cfg.Gateways.Colexpay.IPNSecret)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV",
		"HTTP_ADDR",
		"HTTP_READ_TIMEOUT",
		"HTTP_WRITE_TIMEOUT",
		"HTTP_IDLE_TIMEOUT",
		"LOG_LEVEL",
		"POSTGRES_DSN",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"TOKEN_PRICE_NANO_USD",
		"MIN_PURCHASE_CENTS",
		"MAX_PURCHASE_CENTS",
		"MULTI_PURCHASE",
		"PAYMENT_WINDOW",
		"HANDLE_SECRET",
		"VESTING_IMMEDIATE_BPS",
		"VESTING_CLIFF",
		"VESTING_DURATION",
		"COLEXPAY_API_KEY",
		"COLEXPAY_IPN_SECRET",
		"OPENPAYS_API_KEY",
		"OPENPAYS_IPN_SECRET",
		"TREASURY_BASE_URL",
		"TREASURY_API_KEY",
		"TREASURY_TIMEOUT",
		"TELEGRAM_TOKEN",
		"TELEGRAM_CHAT_ID",
		"SWEEPER_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}
