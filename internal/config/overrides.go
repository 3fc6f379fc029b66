package config

import (
	"encoding/json"
	"os"
	"strings"
	"sync/atomic"
)

// Overrides is one immutable snapshot of the manual watchlist override
// file. Consumers always see either the previous or the next complete
// snapshot, never a half-applied reload.
type Overrides struct {
	Version int64    `json:"-"`
	Add     []string `json:"add"`
	Remove  []string `json:"remove"`
}

// ForceAdd reports whether symbol is pinned onto the watchlist.
func (o *Overrides) ForceAdd(symbol string) bool { return contains(o.Add, symbol) }

// ForceRemove reports whether symbol is banned from the watchlist.
func (o *Overrides) ForceRemove(symbol string) bool { return contains(o.Remove, symbol) }

func contains(list []string, symbol string) bool {
	for _, s := range list {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// OverrideStore re-reads the override file on demand and swaps the parsed
// snapshot atomically.
type OverrideStore struct {
	path    string
	version atomic.Int64
	current atomic.Pointer[Overrides]
}

// NewOverrideStore returns a store starting from an empty snapshot.
func NewOverrideStore(path string) *OverrideStore {
	s := &OverrideStore{path: path}
	s.current.Store(&Overrides{})
	return s
}

// Current returns the latest complete snapshot.
func (s *OverrideStore) Current() *Overrides {
	return s.current.Load()
}

// Reload re-reads the file. A missing file yields an empty snapshot; a
// malformed file keeps the previous snapshot and returns the parse error.
func (s *OverrideStore) Reload() (*Overrides, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		next := &Overrides{Version: s.version.Add(1)}
		s.current.Store(next)
		return next, nil
	}
	if err != nil {
		return s.Current(), err
	}

	var next Overrides
	if err := json.Unmarshal(b, &next); err != nil {
		return s.Current(), err
	}
	for i := range next.Add {
		next.Add[i] = strings.ToUpper(strings.TrimSpace(next.Add[i]))
	}
	for i := range next.Remove {
		next.Remove[i] = strings.ToUpper(strings.TrimSpace(next.Remove[i]))
	}
	next.Version = s.version.Add(1)
	s.current.Store(&next)
	return &next, nil
}
