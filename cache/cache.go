// Package cache provides an encrypted file-backed balance cache so the
// last known balance survives restarts and is readable offline without
// being trivially editable on disk.
package cache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vidscribe/vidscribe/credit"
	"github.com/vidscribe/vidscribe/id"
)

// ErrBadKey is returned when the key material is empty.
var ErrBadKey = errors.New("vidscribe: cache key must not be empty")

// File stores one encrypted balance snapshot per user under a
// directory. Snapshots are sealed with AES-256-GCM; a snapshot that
// fails to open (tampered, truncated, or sealed with another key) is
// treated as absent.
type File struct {
	dir    string
	aead   cipher.AEAD
	logger *slog.Logger
}

var _ credit.Cache = (*File)(nil)

type snapshot struct {
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFile creates a cache rooted at dir. The key material is stretched
// to a 256-bit AES key, so any non-empty secret works.
func NewFile(dir string, key []byte, logger *slog.Logger) (*File, error) {
	if len(key) == 0 {
		return nil, ErrBadKey
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("vidscribe: create cache dir: %w", err)
	}

	sum := sha256.Sum256(key)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("vidscribe: cache cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vidscribe: cache aead: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &File{dir: dir, aead: aead, logger: logger}, nil
}

// Get returns the cached balance for the user, or ok=false when no
// usable snapshot exists.
func (f *File) Get(userID id.UserID) (int64, bool) {
	raw, err := os.ReadFile(f.path(userID))
	if err != nil {
		return 0, false
	}
	if len(raw) < f.aead.NonceSize() {
		return 0, false
	}

	nonce, sealed := raw[:f.aead.NonceSize()], raw[f.aead.NonceSize():]
	plain, err := f.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		f.logger.Warn("balance cache unreadable, ignoring", "user_id", userID, "error", err)
		return 0, false
	}

	var snap snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return 0, false
	}
	return snap.Balance, true
}

// Put seals and writes the balance snapshot. The write goes through a
// temp file and rename so a crash never leaves a torn snapshot.
func (f *File) Put(userID id.UserID, balance int64) error {
	plain, err := json.Marshal(snapshot{Balance: balance, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("vidscribe: encode cache snapshot: %w", err)
	}

	nonce := make([]byte, f.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("vidscribe: cache nonce: %w", err)
	}
	sealed := f.aead.Seal(nonce, nonce, plain, nil)

	path := f.path(userID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("vidscribe: write cache snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vidscribe: commit cache snapshot: %w", err)
	}
	return nil
}

// Delete removes the user's snapshot. Deleting a missing snapshot is a
// no-op.
func (f *File) Delete(userID id.UserID) error {
	err := os.Remove(f.path(userID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vidscribe: delete cache snapshot: %w", err)
	}
	return nil
}

func (f *File) path(userID id.UserID) string {
	return filepath.Join(f.dir, userID.String()+".bal")
}
