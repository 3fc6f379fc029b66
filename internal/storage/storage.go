package storage

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"breakout_trading/internal/models"
)

// Store persists the engine snapshot to a single JSON file with atomic
// replacement. Best effort only: a failed save logs and waits for the next
// interval, it never disturbs the previous good snapshot.
type Store struct {
	Path string
}

// Load reads the snapshot from disk. A missing file yields a fresh template
// (and writes it, so the next restart finds one).
func (s *Store) Load() (models.EngineState, error) {
	state := models.NewEngineState()

	if _, err := os.Stat(s.Path); os.IsNotExist(err) {
		log.Println("State file missing, generating template...")
		s.Save(state)
		return state, nil
	}

	b, err := os.ReadFile(s.Path)
	if err != nil {
		return state, err
	}
	if err := json.Unmarshal(b, &state); err != nil {
		return state, err
	}
	if migrate(&state) {
		log.Printf("State migrated to schema %s, saving...", state.Version)
		s.Save(state)
	}
	return state, nil
}

// migrate upgrades older snapshots in place. Returns true when the snapshot
// changed and should be re-saved.
func migrate(state *models.EngineState) bool {
	updated := false

	// 2.0 -> 2.1: InitialQty became mandatory; older snapshots carried only
	// the live qty.
	if state.Version < "2.1" {
		for _, p := range state.Positions {
			if p.InitialQty.IsZero() {
				p.InitialQty = p.Qty
			}
			if p.PyramidsDone == nil {
				p.PyramidsDone = map[int]bool{}
			}
		}
		state.Version = "2.1"
		updated = true
	}

	// Maps may be null in hand-edited files.
	if state.Positions == nil {
		state.Positions = map[string]*models.Position{}
		updated = true
	}
	if state.Watchlist == nil {
		state.Watchlist = map[string]*models.WatchlistEntry{}
		updated = true
	}
	if state.Orders == nil {
		state.Orders = map[string]*models.TrackedOrder{}
		updated = true
	}
	return updated
}

// Save writes the snapshot via tmp-file + fsync + rename so a crash mid-write
// never corrupts the previous snapshot.
func (s *Store) Save(state models.EngineState) {
	state.SavedAt = time.Now().UTC().Format(time.RFC3339)
	if state.Version == "" {
		state.Version = models.StateVersion
	}

	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Printf("ERROR: failed to marshal state: %v", err)
		return
	}

	tmp := s.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		log.Printf("ERROR: failed to create temp state file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(b); err != nil {
		log.Printf("ERROR: failed to write temp state file: %v", err)
		return
	}
	if err := f.Sync(); err != nil {
		log.Printf("ERROR: failed to sync temp state file: %v", err)
		return
	}
	f.Close()

	if err := os.Rename(tmp, s.Path); err != nil {
		log.Printf("ERROR: failed to replace state file: %v", err)
	}
}
