// Package storage reads and writes the data directory's JSON documents,
// transparently encrypting them with age when encryption is enabled.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"
)

const (
	// markerFile indicates encryption is enabled
	markerFile = ".encrypted"

	// verifyFile holds verifyMagic encrypted with the data password
	verifyFile = ".encryption-verify"

	verifyMagic = `{"magic":"tally-encryption-verify","version":1}`

	// MinPasswordLength is the shortest accepted data password
	MinPasswordLength = 8
)

var (
	ErrLocked            = errors.New("storage is encrypted and locked")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrAlreadyEncrypted  = errors.New("encryption is already enabled")
	ErrNotEncrypted      = errors.New("encryption is not enabled")
	ErrPasswordTooShort  = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// Storage provides transparent encrypted/unencrypted file access
type Storage struct {
	baseDir   string
	encrypted bool
	identity  *age.ScryptIdentity
	recipient *age.ScryptRecipient
	mu        sync.RWMutex
}

// Status describes the encryption state of the data directory
type Status struct {
	Encrypted bool `json:"encrypted"`
	Unlocked  bool `json:"unlocked"`
}

// New creates a Storage rooted at baseDir, creating the directory if needed
func New(baseDir string) (*Storage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Storage{baseDir: baseDir}
	if _, err := os.Stat(filepath.Join(baseDir, markerFile)); err == nil {
		s.encrypted = true
	}
	return s, nil
}

// BaseDir returns the base directory
func (s *Storage) BaseDir() string {
	return s.baseDir
}

// Path returns the absolute path of a document in the data directory
func (s *Storage) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// Status reports whether the data is encrypted and whether it is unlocked
func (s *Storage) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{Encrypted: s.encrypted, Unlocked: !s.encrypted || s.identity != nil}
}

// IsUnlocked returns true if the data can be read and written
func (s *Storage) IsUnlocked() bool {
	return s.Status().Unlocked
}

// Unlock verifies password against the verification file and keeps the key
// in memory until Lock
func (s *Storage) Unlock(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.encrypted {
		return nil
	}

	identity, err := s.verifyPassword(password)
	if err != nil {
		return err
	}
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return fmt.Errorf("create recipient: %w", err)
	}

	s.identity = identity
	s.recipient = recipient
	return nil
}

// Lock clears the encryption key from memory
func (s *Storage) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	s.recipient = nil
}

// ReadFile reads a document, decrypting it if needed
func (s *Storage) ReadFile(path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isAgeEncrypted(data) {
		if s.identity == nil {
			return nil, ErrLocked
		}
		return decryptData(data, s.identity)
	}
	return data, nil
}

// WriteFile writes a document atomically, encrypting it when encryption is on.
// Writing to encrypted storage that is locked fails rather than storing
// plaintext.
func (s *Storage) WriteFile(path string, data []byte, perm os.FileMode) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.encrypted && !s.shouldSkipEncryption(path) {
		if s.recipient == nil {
			return ErrLocked
		}
		encrypted, err := encryptData(data, s.recipient)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", filepath.Base(path), err)
		}
		data = encrypted
	}

	return atomicWrite(path, data, perm)
}

// Exists reports whether a document exists
func (s *Storage) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// atomicWrite writes data to a temp file and renames it over path
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// shouldSkipEncryption returns true for the encryption bookkeeping files
func (s *Storage) shouldSkipEncryption(path string) bool {
	base := filepath.Base(path)
	return base == markerFile || base == verifyFile
}
