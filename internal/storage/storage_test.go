package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"breakout_trading/internal/models"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return &Store{Path: filepath.Join(t.TempDir(), "state.json")}
}

func TestLoadMissingFileCreatesTemplate(t *testing.T) {
	s := tempStore(t)

	state, err := s.Load()
	if err != nil {
		t.Fatalf("load of missing file failed: %v", err)
	}
	if state.Version != models.StateVersion {
		t.Errorf("expected version %s, got %s", models.StateVersion, state.Version)
	}
	if state.Positions == nil || state.Watchlist == nil || state.Orders == nil {
		t.Error("template has nil maps")
	}
	if _, err := os.Stat(s.Path); err != nil {
		t.Errorf("template not written to disk: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := tempStore(t)

	state := models.NewEngineState()
	state.Positions["XYZ"] = &models.Position{
		Symbol:           "XYZ",
		Qty:              decimal.NewFromInt(900),
		InitialQty:       decimal.NewFromInt(1000),
		AvgEntryPrice:    decimal.RequireFromString("10.11"),
		ProfitTargetsHit: 1,
		StopTriggered:    true,
		PyramidsDone:     map[int]bool{0: true},
	}
	state.Watchlist["XYZ"] = &models.WatchlistEntry{
		Symbol:            "XYZ",
		HighOfDay:         decimal.RequireFromString("10.40"),
		HODFrozen:         true,
		PendingEntryOrder: "ENTRY-abc",
	}
	state.Orders["ord-1"] = &models.TrackedOrder{
		ID: "ord-1", Symbol: "XYZ", Kind: models.KindEntry,
	}
	s.Save(state)

	got, err := s.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	pos := got.Positions["XYZ"]
	if pos == nil {
		t.Fatal("position lost in round trip")
	}
	if !pos.InitialQty.Equal(decimal.NewFromInt(1000)) || !pos.StopTriggered {
		t.Errorf("position fields lost: %+v", pos)
	}
	if !pos.PyramidsDone[0] {
		t.Error("pyramid latch lost")
	}
	entry := got.Watchlist["XYZ"]
	if entry == nil || !entry.HODFrozen || entry.PendingEntryOrder != "ENTRY-abc" {
		t.Errorf("watchlist fields lost: %+v", entry)
	}
	if got.Orders["ord-1"] == nil {
		t.Error("tracked order lost")
	}
}

func TestLoadMigratesLegacySnapshot(t *testing.T) {
	s := tempStore(t)

	// A 2.0 snapshot has no initial_qty and may carry null maps.
	legacy := `{
	  "version": "2.0",
	  "positions": {
	    "XYZ": {"symbol": "XYZ", "qty": "500", "avg_entry_price": "10.00"}
	  },
	  "watchlist": null,
	  "orders": null
	}`
	if err := os.WriteFile(s.Path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	state, err := s.Load()
	if err != nil {
		t.Fatalf("migration load failed: %v", err)
	}
	if state.Version != "2.1" {
		t.Errorf("expected version 2.1, got %s", state.Version)
	}
	pos := state.Positions["XYZ"]
	if !pos.InitialQty.Equal(decimal.NewFromInt(500)) {
		t.Errorf("initial qty not backfilled from qty: %s", pos.InitialQty)
	}
	if pos.PyramidsDone == nil {
		t.Error("pyramids map not initialized")
	}
	if state.Watchlist == nil || state.Orders == nil {
		t.Error("null maps not repaired")
	}

	// The migrated snapshot was re-saved; a second load needs no migration.
	again, err := s.Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Version != "2.1" {
		t.Errorf("migration did not persist, got %s", again.Version)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	s := tempStore(t)
	s.Save(models.NewEngineState())

	// No stray temp file after a successful save.
	if _, err := os.Stat(s.Path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}
