// Package settings persists and loads the device addressing and app
// registration records as JSON files under the fbxos settings directory.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/koltyakov/fbxos/internal/domain"
)

const (
	addressingFile   = "addressing.json"
	registrationFile = "registration.json"
)

// DefaultDir returns ~/.fbxos. It uses the user's home directory so the
// registration survives temp-dir cleanup.
func DefaultDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".fbxos")
}

// Store reads and writes settings files in Dir.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir, or at [DefaultDir] when dir is empty.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{Dir: dir}
}

// AddressingPath returns the absolute path of the addressing cache.
func (s *Store) AddressingPath() string {
	return filepath.Join(s.Dir, addressingFile)
}

// RegistrationPath returns the absolute path of the registration cache.
func (s *Store) RegistrationPath() string {
	return filepath.Join(s.Dir, registrationFile)
}

// LoadAddressing reads and validates the addressing cache.
func (s *Store) LoadAddressing() (domain.Addressing, error) {
	var a domain.Addressing
	if err := s.read(s.AddressingPath(), &a, "addressing", domain.HintDiscover); err != nil {
		return domain.Addressing{}, err
	}
	if err := a.Validate(); err != nil {
		return domain.Addressing{}, err
	}
	return a, nil
}

// SaveAddressing validates and writes the addressing cache.
func (s *Store) SaveAddressing(a domain.Addressing) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.write(s.AddressingPath(), a)
}

// LoadRegistration reads and validates the registration cache.
func (s *Store) LoadRegistration() (domain.Registration, error) {
	var r domain.Registration
	if err := s.read(s.RegistrationPath(), &r, "registration", domain.HintRegister); err != nil {
		return domain.Registration{}, err
	}
	if err := r.Validate(); err != nil {
		return domain.Registration{}, err
	}
	return r, nil
}

// SaveRegistration validates and writes the registration cache.
func (s *Store) SaveRegistration(r domain.Registration) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.write(s.RegistrationPath(), r)
}

func (s *Store) read(path string, v any, field, hint string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cause := error(err)
		if field == "registration" {
			cause = domain.ErrNotRegistered
		}
		return &domain.ConfigurationError{Field: field, Hint: hint, Err: cause}
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &domain.ConfigurationError{Field: field, Hint: hint, Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return nil
}

// write stores v with 0600 permissions.
func (s *Store) write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
