// Package cache keeps lint results on disk, keyed by everything that can
// change the validator's answer for a file.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"cfnls/internal/diag"
	"cfnls/internal/validate"
)

// Bump when Entry changes shape.
const schemaVersion uint16 = 1

// Key identifies one validator answer.
type Key [sha256.Size]byte

// Entry is a cached lint result.
type Entry struct {
	Schema      uint16
	Path        string
	Diagnostics []diag.Diagnostic
}

// DiskCache stores entries as msgpack files. Safe for concurrent use.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// DefaultDir is $XDG_CACHE_HOME/cfnls, falling back to ~/.cache/cfnls.
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "cfnls"), nil
}

// Open creates dir if needed. An empty dir means DefaultDir.
func Open(dir string) (*DiskCache, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// KeyFor hashes the document path and text together with the command line
// the validator would be started with and the template markers.
func KeyFor(doc validate.Document, settings validate.Settings, markers []string) Key {
	h := sha256.New()
	var schema [2]byte
	binary.LittleEndian.PutUint16(schema[:], schemaVersion)
	h.Write(schema[:])
	writeField(h, doc.Path)
	writeField(h, settings.Command())
	for _, arg := range settings.Args(doc.Path) {
		writeField(h, arg)
	}
	for _, marker := range markers {
		writeField(h, marker)
	}
	writeField(h, doc.Text)
	var key Key
	copy(key[:], h.Sum(nil))
	return key
}

// writeField length-prefixes s so adjacent fields cannot run together.
func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

func (c *DiskCache) pathFor(key Key) string {
	return filepath.Join(c.dir, "results", hex.EncodeToString(key[:])+".mp")
}

// Put writes entry atomically.
func (c *DiskCache) Put(key Key, entry *Entry) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	stored := *entry
	stored.Schema = schemaVersion
	if err = msgpack.NewEncoder(f).Encode(&stored); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the entry for key. Entries written by another schema miss.
func (c *DiskCache) Get(key Key, out *Entry) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	var entry Entry
	if err := msgpack.NewDecoder(f).Decode(&entry); err != nil {
		return false, err
	}
	if entry.Schema != schemaVersion {
		return false, nil
	}
	*out = entry
	return true, nil
}

// DropAll removes every cached entry.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}
