package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"breakout_trading/internal/models"
)

// MarketLoc is the exchange timezone. All time-of-day gates (volume
// thresholds, entry window) are evaluated in it.
var MarketLoc = loadMarketLoc()

func loadMarketLoc() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// tzdata missing on the host; EST without DST is the safe fallback.
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// Config holds every runtime parameter. Loaded once at startup; the only
// piece that changes afterwards is the override file, which is re-read on
// the scan cadence (see overrides.go).
type Config struct {
	Version string

	// Cadences.
	ScanIntervalSec      int
	ReconcileIntervalSec int
	OrderPollIntervalSec int
	SnapshotIntervalSec  int

	// Scan filters.
	MinGapPct          float64
	MinScanPrice       float64
	MaxScanPrice       float64
	MoversTop          int
	VolumeMinPremarket int64
	VolumeMinMorning   int64
	VolumeMinAfter     int64

	// Entry gates.
	EntryStart      string // "HH:MM" market time
	EntryEnd        string
	MorningCutoff   string // boundary between the two in-session volume bars
	HaltCooldownSec int
	ExtendedHours   bool

	// Dispatch / retry.
	DispatchSpacingMS int
	RetryMaxAttempts  int
	RetryBaseMS       int

	// Per-kind order timeouts.
	EntryTimeoutSec   int
	CloseTimeoutSec   int
	PyramidTimeoutSec int
	OrderTimeoutSec   int // fallback for other kinds

	// Strategy fallbacks when a tier leaves a field unset.
	GlobalStopCents   decimal.Decimal
	TrailingWindowSec int

	// EntryNotional is the dollar amount targeted per new entry; share count
	// is floored from it at the planned limit price.
	EntryNotional decimal.Decimal

	// Files and sinks.
	StateFile     string
	OverridesFile string
	MetricsAddr   string
	MaxLogSizeMB  int64
	MaxLogBackups int

	Tiers []models.Tier
}

// Load reads .env, validates required broker credentials, echoes the
// effective non-secret settings, and returns the Config. Missing required
// variables are fatal: this is the only failure allowed to kill the process.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	required := []string{"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "APCA_API_BASE_URL"}
	var missing []string
	for _, key := range required {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		log.Fatalf("CRITICAL: missing required environment variables: %v", missing)
	}

	cfg := &Config{
		ScanIntervalSec:      getEnvAsInt("SCAN_INTERVAL_SEC", 60),
		ReconcileIntervalSec: getEnvAsInt("RECONCILE_INTERVAL_SEC", 5),
		OrderPollIntervalSec: getEnvAsInt("ORDER_POLL_INTERVAL_SEC", 3),
		SnapshotIntervalSec:  getEnvAsInt("SNAPSHOT_INTERVAL_SEC", 30),

		MinGapPct:          getEnvAsFloat64("MIN_GAP_PCT", 10.0),
		MinScanPrice:       getEnvAsFloat64("MIN_SCAN_PRICE", 2.0),
		MaxScanPrice:       getEnvAsFloat64("MAX_SCAN_PRICE", 100.0),
		MoversTop:          getEnvAsInt("MOVERS_TOP", 50),
		VolumeMinPremarket: getEnvAsInt64("VOLUME_MIN_PREMARKET", 500_000),
		VolumeMinMorning:   getEnvAsInt64("VOLUME_MIN_MORNING", 1_000_000),
		VolumeMinAfter:     getEnvAsInt64("VOLUME_MIN_AFTER", 300_000),

		EntryStart:      getEnvAsString("ENTRY_START", "09:30"),
		EntryEnd:        getEnvAsString("ENTRY_END", "15:55"),
		MorningCutoff:   getEnvAsString("MORNING_CUTOFF", "11:00"),
		HaltCooldownSec: getEnvAsInt("HALT_COOLDOWN_SEC", 300),
		ExtendedHours:   getEnvAsBool("EXTENDED_HOURS", false),

		DispatchSpacingMS: getEnvAsInt("DISPATCH_SPACING_MS", 350),
		RetryMaxAttempts:  getEnvAsInt("RETRY_MAX_ATTEMPTS", 4),
		RetryBaseMS:       getEnvAsInt("RETRY_BASE_MS", 500),

		EntryTimeoutSec:   getEnvAsInt("ENTRY_TIMEOUT_SEC", 30),
		CloseTimeoutSec:   getEnvAsInt("CLOSE_TIMEOUT_SEC", 15),
		PyramidTimeoutSec: getEnvAsInt("PYRAMID_TIMEOUT_SEC", 30),
		OrderTimeoutSec:   getEnvAsInt("ORDER_TIMEOUT_SEC", 60),

		GlobalStopCents:   decimal.NewFromFloat(getEnvAsFloat64("GLOBAL_STOP_CENTS", 30)),
		TrailingWindowSec: getEnvAsInt("TRAILING_WINDOW_SEC", 10),
		EntryNotional:     decimal.NewFromFloat(getEnvAsFloat64("ENTRY_NOTIONAL", 5000)),

		StateFile:     getEnvAsString("STATE_FILE", "engine_state.json"),
		OverridesFile: getEnvAsString("OVERRIDES_FILE", "watchlist_overrides.json"),
		MetricsAddr:   getEnvAsString("METRICS_ADDR", ":9100"),
		MaxLogSizeMB:  int64(getEnvAsInt("MAX_LOG_SIZE_MB", 20)),
		MaxLogBackups: getEnvAsInt("MAX_LOG_BACKUPS", 5),

		Tiers: DefaultTiers(),
	}

	echoEnv(required)
	return cfg
}

// echoEnv prints the .env contents with secrets masked to the last 4 chars,
// so a restart leaves an audit trail of the effective settings.
func echoEnv(secretKeys []string) {
	envMap, err := godotenv.Read()
	if err != nil {
		return
	}
	secrets := map[string]bool{}
	for _, k := range secretKeys {
		secrets[k] = true
	}
	log.Println("--- effective .env ---")
	for key, val := range envMap {
		if secrets[key] {
			masked := "***"
			if len(val) > 4 {
				masked = "***" + val[len(val)-4:]
			}
			log.Printf("%s=%s", key, masked)
			continue
		}
		log.Printf("%s=%s", key, val)
	}
	log.Println("----------------------")
}

// Timeout returns the cancellation deadline for an order of the given kind.
func (c *Config) Timeout(kind models.OrderKind) time.Duration {
	switch kind {
	case models.KindEntry:
		return time.Duration(c.EntryTimeoutSec) * time.Second
	case models.KindClose, models.KindIOC:
		return time.Duration(c.CloseTimeoutSec) * time.Second
	case models.KindPyramid:
		return time.Duration(c.PyramidTimeoutSec) * time.Second
	default:
		return time.Duration(c.OrderTimeoutSec) * time.Second
	}
}
