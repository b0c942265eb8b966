// Package tokenstore persists opaque bearer tokens to a JSON file under the
// data directory and resolves them to client identities on every
// authenticated request. On first run with an empty store it bootstraps a
// single admin token and prints it to stdout.
package tokenstore

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/config"
)

// Token is one entry in the store.
type Token struct {
	ID         string    `json:"id"`
	ClientName string    `json:"client_name"`
	IsAdmin    bool      `json:"is_admin"`
	CreatedAt  time.Time `json:"created_at"`
}

// Identity is what validation hands back to the caller; it never exposes the
// raw token value.
type Identity struct {
	ClientName string
	IsAdmin    bool
}

type fileFormat struct {
	Tokens []Token `json:"tokens"`
}

// Store is a thread-safe, disk-persisted token store.
type Store struct {
	mu   sync.RWMutex
	path string
	byID map[string]Token
	log  zerolog.Logger
}

// Load reads the token file at path, creating the parent directory and an
// admin token if the store is empty or doesn't exist yet. Corruption (an
// existing file that fails to parse) is fatal: the store never silently
// regenerates tokens out from under an operator.
func Load(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, byID: make(map[string]Token), log: log.With().Str("component", "tokenstore").Logger()}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var ff fileFormat
		if jsonErr := json.Unmarshal(data, &ff); jsonErr != nil {
			return nil, fmt.Errorf("token store %s is corrupt, refusing to start: %w", path, jsonErr)
		}
		for _, t := range ff.Tokens {
			s.byID[t.ID] = t
		}
	case os.IsNotExist(err):
		// fresh store, nothing to load
	default:
		return nil, fmt.Errorf("reading token store: %w", err)
	}

	if !s.hasAdmin() {
		tok, genErr := s.createLocked("admin", true)
		if genErr != nil {
			return nil, genErr
		}
		fmt.Printf("Admin Token: %s\n", tok)
		s.log.Info().Msg("bootstrapped initial admin token")
	}

	return s, nil
}

func (s *Store) hasAdmin() bool {
	for _, t := range s.byID {
		if t.IsAdmin {
			return true
		}
	}
	return false
}

// Validate resolves a raw token to an Identity. Lookup itself is a plain map
// hit (acceptable for this threat model: single-tenant, local network or
// Tailscale-fronted) but the token is never echoed back or logged.
func (s *Store) Validate(raw string) (Identity, bool) {
	if raw == "" {
		return Identity{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[raw]
	if !ok {
		return Identity{}, false
	}
	return Identity{ClientName: t.ClientName, IsAdmin: t.IsAdmin}, true
}

// ConstantTimeEquals is exposed for callers that compare a candidate token
// against a single known value rather than doing a full store lookup. No
// code in this repository outside its test calls it.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Create generates a new token for client, persists it, and returns the raw
// value (it is never retrievable again).
func (s *Store) Create(clientName string, isAdmin bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(clientName, isAdmin)
}

func (s *Store) createLocked(clientName string, isAdmin bool) (string, error) {
	raw, err := config.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	s.byID[raw] = Token{
		ID:         raw,
		ClientName: clientName,
		IsAdmin:    isAdmin,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.persistLocked(); err != nil {
		delete(s.byID, raw)
		return "", err
	}
	return raw, nil
}

// Revoke deletes a token by its ID (the raw token value).
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("token %s not found", id)
	}
	delete(s.byID, id)
	return s.persistLocked()
}

// List returns all tokens with IDs redacted to a short prefix, suitable for
// the admin listing endpoint.
type ListEntry struct {
	IDPrefix   string    `json:"id_prefix"`
	ClientName string    `json:"client_name"`
	IsAdmin    bool      `json:"is_admin"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) List() []ListEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ListEntry, 0, len(s.byID))
	for id, t := range s.byID {
		prefix := id
		if len(prefix) > 8 {
			prefix = prefix[:8] + "…"
		}
		out = append(out, ListEntry{IDPrefix: prefix, ClientName: t.ClientName, IsAdmin: t.IsAdmin, CreatedAt: t.CreatedAt})
	}
	return out
}

func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("mkdir token dir: %w", err)
	}
	ff := fileFormat{Tokens: make([]Token, 0, len(s.byID))}
	for _, t := range s.byID {
		ff.Tokens = append(ff.Tokens, t)
	}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token store: %w", err)
	}

	// Atomic write: temp file + rename, same idiom as the audio store.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename token file: %w", err)
	}
	return nil
}

