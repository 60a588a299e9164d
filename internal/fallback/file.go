// Package fallback reads and writes the JSON accounts file used when the
// database layer is disabled or unreachable.
package fallback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/mkorchagin/accountstore/pkg/models"
)

// Store is a file-backed account set.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "fallback"),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the account set. A missing file is an empty set, not an error.
func (s *Store) Load() ([]models.Account, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Account{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading accounts file: %w", err)
	}

	var accounts []models.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parsing accounts file %s: %w", s.path, err)
	}
	return accounts, nil
}

// Save replaces the whole file atomically so a crash mid-write never leaves
// a truncated account set behind.
func (s *Store) Save(accounts []models.Account) error {
	if accounts == nil {
		accounts = []models.Account{}
	}

	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding accounts: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating accounts directory: %w", err)
		}
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing accounts file: %w", err)
	}

	s.logger.Debug("wrote accounts file", "path", s.path, "count", len(accounts))
	return nil
}
