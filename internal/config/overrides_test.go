package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOverridesReloadAndNormalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	body := `{"add": [" abcd ", "efgh"], "remove": ["xyz"]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewOverrideStore(path)
	ov, err := s.Reload()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	// Symbols are trimmed and uppercased; matching is case-insensitive.
	if !ov.ForceAdd("ABCD") || !ov.ForceAdd("efgh") {
		t.Errorf("adds not normalized: %v", ov.Add)
	}
	if !ov.ForceRemove("XYZ") {
		t.Errorf("removes not normalized: %v", ov.Remove)
	}
	if ov.ForceAdd("OTHER") {
		t.Error("unlisted symbol reported as pinned")
	}
}

func TestOverridesMissingFileYieldsEmpty(t *testing.T) {
	s := NewOverrideStore(filepath.Join(t.TempDir(), "absent.json"))
	ov, err := s.Reload()
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(ov.Add) != 0 || len(ov.Remove) != 0 {
		t.Errorf("expected empty snapshot, got %+v", ov)
	}
}

func TestOverridesMalformedFileKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	if err := os.WriteFile(path, []byte(`{"add": ["GOOD"]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewOverrideStore(path)
	if _, err := s.Reload(); err != nil {
		t.Fatalf("initial reload failed: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	ov, err := s.Reload()
	if err == nil {
		t.Fatal("malformed file did not report an error")
	}
	if !ov.ForceAdd("GOOD") {
		t.Error("previous snapshot lost on malformed reload")
	}
	if s.Current() != ov {
		t.Error("current snapshot changed despite parse failure")
	}
}
