package tokenstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.json")
	s, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, path
}

func TestLoadBootstrapsAdminToken(t *testing.T) {
	s, path := newTestStore(t)

	entries := s.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 bootstrapped token, got %d", len(entries))
	}
	if !entries[0].IsAdmin {
		t.Error("bootstrapped token should be admin")
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("token file not persisted: %v", err)
	}
}

func TestValidateRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	raw, err := s.Create("alice-laptop", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	id, ok := s.Validate(raw)
	if !ok {
		t.Fatal("expected valid token")
	}
	if id.ClientName != "alice-laptop" || id.IsAdmin {
		t.Errorf("Identity = %+v", id)
	}

	if _, ok := s.Validate("not-a-real-token"); ok {
		t.Error("expected invalid token to fail validation")
	}
	if _, ok := s.Validate(""); ok {
		t.Error("expected empty token to fail validation")
	}
}

func TestRevoke(t *testing.T) {
	s, _ := newTestStore(t)
	raw, _ := s.Create("bob", false)

	if err := s.Revoke(raw); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, ok := s.Validate(raw); ok {
		t.Error("revoked token should no longer validate")
	}
	if err := s.Revoke(raw); err == nil {
		t.Error("revoking an already-revoked token should error")
	}
}

func TestLoadPersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s1, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	raw, _ := s1.Create("carol", false)

	s2, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if _, ok := s2.Validate(raw); !ok {
		t.Error("token created before restart should still validate")
	}
	// No second admin token should be generated since one already exists.
	admins := 0
	for _, e := range s2.List() {
		if e.IsAdmin {
			admins++
		}
	}
	if admins != 1 {
		t.Errorf("expected exactly 1 admin token after restart, got %d", admins)
	}
}

func TestLoadCorruptFileRefusesToStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, zerolog.Nop()); err == nil {
		t.Error("expected corrupt token store to refuse to start")
	}
}

func TestConstantTimeEquals(t *testing.T) {
	if !ConstantTimeEquals("abc", "abc") {
		t.Error("expected equal strings to compare equal")
	}
	if ConstantTimeEquals("abc", "abd") {
		t.Error("expected different strings to compare unequal")
	}
}
