package config

import (
	"testing"
	"time"

	"breakout_trading/internal/models"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APCA_API_KEY_ID", "test-key")
	t.Setenv("APCA_API_SECRET_KEY", "test-secret")
	t.Setenv("APCA_API_BASE_URL", "https://paper-api.alpaca.markets")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg := Load()

	if cfg.ScanIntervalSec != 60 {
		t.Errorf("expected default scan interval 60, got %d", cfg.ScanIntervalSec)
	}
	if cfg.MinGapPct != 10.0 {
		t.Errorf("expected default min gap 10.0, got %f", cfg.MinGapPct)
	}
	if cfg.EntryStart != "09:30" || cfg.EntryEnd != "15:55" {
		t.Errorf("unexpected entry window %s-%s", cfg.EntryStart, cfg.EntryEnd)
	}
	if cfg.RetryMaxAttempts != 4 {
		t.Errorf("expected 4 retry attempts, got %d", cfg.RetryMaxAttempts)
	}
	if !cfg.EntryNotional.Equal(d(5000)) {
		t.Errorf("expected default notional 5000, got %s", cfg.EntryNotional)
	}
	if len(cfg.Tiers) == 0 {
		t.Error("no default tiers loaded")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SCAN_INTERVAL_SEC", "15")
	t.Setenv("MIN_GAP_PCT", "25.5")
	t.Setenv("EXTENDED_HOURS", "true")
	t.Setenv("ENTRY_NOTIONAL", "2500")

	cfg := Load()

	if cfg.ScanIntervalSec != 15 {
		t.Errorf("expected scan interval 15, got %d", cfg.ScanIntervalSec)
	}
	if cfg.MinGapPct != 25.5 {
		t.Errorf("expected min gap 25.5, got %f", cfg.MinGapPct)
	}
	if !cfg.ExtendedHours {
		t.Error("extended hours flag not picked up")
	}
	if !cfg.EntryNotional.Equal(d(2500)) {
		t.Errorf("expected notional 2500, got %s", cfg.EntryNotional)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SCAN_INTERVAL_SEC", "not-a-number")
	t.Setenv("MIN_GAP_PCT", "")

	cfg := Load()

	if cfg.ScanIntervalSec != 60 {
		t.Errorf("malformed int did not fall back, got %d", cfg.ScanIntervalSec)
	}
	if cfg.MinGapPct != 10.0 {
		t.Errorf("empty float did not fall back, got %f", cfg.MinGapPct)
	}
}

func TestTimeoutPerKind(t *testing.T) {
	cfg := &Config{
		EntryTimeoutSec:   30,
		CloseTimeoutSec:   15,
		PyramidTimeoutSec: 45,
		OrderTimeoutSec:   60,
	}
	cases := []struct {
		kind models.OrderKind
		want time.Duration
	}{
		{models.KindEntry, 30 * time.Second},
		{models.KindClose, 15 * time.Second},
		{models.KindIOC, 15 * time.Second},
		{models.KindPyramid, 45 * time.Second},
		{models.KindLimit, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := cfg.Timeout(tc.kind); got != tc.want {
			t.Errorf("%s: timeout %s, want %s", tc.kind, got, tc.want)
		}
	}
}

func TestDefaultTiersCoverAllPrices(t *testing.T) {
	tiers := DefaultTiers()
	for _, price := range []float64{0.50, 5, 15, 35, 250} {
		idx := models.TierForPrice(tiers, d(price))
		if idx < 0 || idx >= len(tiers) {
			t.Errorf("price %.2f: tier index %d out of range", price, idx)
		}
	}
	// The last tier must be unbounded so no price falls through.
	if !tiers[len(tiers)-1].MaxPrice.IsZero() {
		t.Error("last tier is bounded above")
	}
}
