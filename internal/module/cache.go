package module

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"borrowck/internal/analysis"
	"borrowck/internal/diag"
)

// cacheSchemaVersion invalidates stale payloads when the format changes.
const cacheSchemaVersion uint16 = 1

// Digest keys a cache entry: SHA-256 over the raw interchange bytes plus the
// analysis policy, so a config change never serves stale results.
type Digest [sha256.Size]byte

// DigestOf computes the cache key for the given input and policy.
func DigestOf(data []byte, config analysis.Config) Digest {
	h := sha256.New()
	h.Write(data)
	var knobs [18]byte
	binary.LittleEndian.PutUint16(knobs[0:], cacheSchemaVersion)
	if config.StopOnFirstError {
		knobs[2] = 1
	}
	if config.PartialMoveOfWholeIsError {
		knobs[3] = 1
	}
	binary.LittleEndian.PutUint64(knobs[4:], uint64(config.MaxDiagnostics))
	// Jobs only affects scheduling, never the result; keep it out of the key.
	h.Write(knobs[:])
	var d Digest
	h.Sum(d[:0])
	return d
}

// Payload is the cached outcome of one analysis run.
type Payload struct {
	Schema    uint16
	Diags     []diag.Diagnostic
	HasErrors bool
	// FilePaths restores span file-table order when rendering cached
	// diagnostics.
	FilePaths []string
}

// Cache stores analysis results keyed by input digest. Thread-safe.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// OpenCache initializes a result cache at the standard user location.
func OpenCache(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// OpenCacheAt initializes a result cache rooted at an explicit directory.
func OpenCacheAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "results", hex.EncodeToString(key[:])+".mp")
}

// Put serializes and writes a payload, replacing any previous entry
// atomically.
func (c *Cache) Put(key Digest, payload *Payload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	payload.Schema = cacheSchemaVersion
	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads a payload back. The second result is false on a miss or when
// the entry was written by an incompatible version.
func (c *Cache) Get(key Digest) (*Payload, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var payload Payload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, err
	}
	if payload.Schema != cacheSchemaVersion {
		return nil, false, nil
	}
	return &payload, true, nil
}

// DropAll wipes the cache, useful after format changes.
func (c *Cache) DropAll() error {
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
	return os.RemoveAll(old)
}
