package cache

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/vidscribe/vidscribe/id"
)

func newTestCache(t *testing.T, key string) *File {
	t.Helper()
	c, err := NewFile(t.TempDir(), []byte(key), nil)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(t, "secret")
	userID := id.NewUserID()

	if _, ok := c.Get(userID); ok {
		t.Fatal("Get before Put should miss")
	}

	if err := c.Put(userID, 42); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := c.Get(userID)
	if !ok || got != 42 {
		t.Fatalf("Get = %d, %v, want 42, true", got, ok)
	}

	// Overwrite.
	if err := c.Put(userID, 7); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, _ := c.Get(userID); got != 7 {
		t.Fatalf("Get after overwrite = %d", got)
	}
}

func TestSnapshotIsOpaqueOnDisk(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFile(dir, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	userID := id.NewUserID()
	if err := c.Put(userID, 9000); err != nil {
		t.Fatalf("Put: %v", err)
	}

	raw, err := os.ReadFile(c.path(userID))
	if err != nil {
		t.Fatalf("read raw snapshot: %v", err)
	}
	for _, needle := range []string{"9000", "balance"} {
		if bytes.Contains(raw, []byte(needle)) {
			t.Errorf("snapshot leaks %q in plaintext", needle)
		}
	}
}

func TestTamperedSnapshotIsIgnored(t *testing.T) {
	c := newTestCache(t, "secret")
	userID := id.NewUserID()
	if err := c.Put(userID, 100); err != nil {
		t.Fatalf("Put: %v", err)
	}

	path := c.path(userID)
	raw, _ := os.ReadFile(path)
	raw[len(raw)-1] ^= 0xff
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if _, ok := c.Get(userID); ok {
		t.Fatal("tampered snapshot should read as absent")
	}
}

func TestWrongKeyReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	userID := id.NewUserID()

	c1, _ := NewFile(dir, []byte("key-one"), nil)
	if err := c1.Put(userID, 55); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c2, _ := NewFile(dir, []byte("key-two"), nil)
	if _, ok := c2.Get(userID); ok {
		t.Fatal("snapshot sealed under another key should miss")
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache(t, "secret")
	userID := id.NewUserID()

	if err := c.Delete(userID); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if err := c.Put(userID, 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Delete(userID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get(userID); ok {
		t.Fatal("Get after Delete should miss")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	if _, err := NewFile(t.TempDir(), nil, nil); !errors.Is(err, ErrBadKey) {
		t.Fatalf("error = %v, want ErrBadKey", err)
	}
}
