package cookie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Backend persists snapshots of the cookie table. Implementations must be
// safe for concurrent use; [Store] never calls Replace concurrently.
type Backend interface {
	// Load returns every persisted cookie. Nothing persisted yet is not an error.
	Load(ctx context.Context) ([]Cookie, error)
	// Replace atomically swaps the persisted table for cookies.
	Replace(ctx context.Context, cookies []Cookie) error
}

// MemoryBackend keeps the snapshot in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	cookies []Cookie
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load(context.Context) ([]Cookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.cookies), nil
}

func (m *MemoryBackend) Replace(_ context.Context, cookies []Cookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cookies = slices.Clone(cookies)
	return nil
}

const (
	fileVersion    = 1
	lockRetryDelay = 25 * time.Millisecond
)

var errLockNotAcquired = errors.New("lock not acquired")

// document is the on-disk layout of a FileBackend.
type document struct {
	Version int      `json:"version"`
	Cookies []Cookie `json:"cookies"`
}

// FileBackend stores the table as a JSON document. Writes go to a temp file
// in the same directory that is renamed over the target, and every access
// holds a file lock at path + ".lock" so processes sharing the file do not
// interleave.
type FileBackend struct {
	path string
	perm fs.FileMode
}

// NewFileBackend returns a FileBackend for path. The file is created on the
// first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, perm: 0o600}
}

// Path returns the location of the cookie file.
func (f *FileBackend) Path() string { return f.path }

func (f *FileBackend) Load(ctx context.Context) ([]Cookie, error) {
	if _, err := os.Stat(filepath.Dir(f.path)); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	unlock, err := f.lock(ctx, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path, err)
	}

	if doc.Version != fileVersion {
		return nil, fmt.Errorf("decoding %s: unsupported version %d", f.path, doc.Version)
	}

	return doc.Cookies, nil
}

func (f *FileBackend) Replace(ctx context.Context, cookies []Cookie) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating dir %s: %w", dir, err)
	}

	unlock, err := f.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	if cookies == nil {
		cookies = []Cookie{}
	}

	b, err := json.MarshalIndent(document{Version: fileVersion, Cookies: cookies}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cookies: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(f.perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	committed = true

	return nil
}

// lock takes the cross-process lock, exclusive for writers and shared for
// readers, retrying until ctx is done.
func (f *FileBackend) lock(ctx context.Context, exclusive bool) (func(), error) {
	fl := flock.New(f.path + ".lock")

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), errLockNotAcquired)
	}

	return func() { _ = fl.Unlock() }, nil
}
