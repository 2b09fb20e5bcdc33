package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Filesystem caches each URL as a pair of files in Dir: the raw body
// and a small JSON sidecar recording where and when it came from.
// Archives survive restarts without being held in memory.
type Filesystem struct {
	Dir     string
	TimeNow func() time.Time

	logger *slog.Logger
	mu     sync.Mutex
}

type sidecar struct {
	URL         string    `json:"url"`
	RetrievedAt time.Time `json:"retrieved_at"`
	Size        int       `json:"size"`
}

func NewFilesystem(dir string, logger *slog.Logger) (*Filesystem, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	return &Filesystem{
		Dir:     dir,
		TimeNow: time.Now,
		logger:  logger.With("component", "fs_downloader"),
	}, nil
}

func (f *Filesystem) paths(url string) (body, meta string) {
	key := cacheKey(url)
	return filepath.Join(f.Dir, key+".body"), filepath.Join(f.Dir, key+".json")
}

func (f *Filesystem) Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	if !options.Cache {
		return HTTPGet(ctx, url, headers, options)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	body, err := f.read(url, options)
	switch {
	case err == nil:
		f.logger.Debug("cache hit", "url", url, "size_bytes", len(body))
		return body, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		f.logger.Warn("ignoring unreadable cache entry", "url", url, "error", err)
	}

	body, err = HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if err := f.write(url, body); err != nil {
		return nil, fmt.Errorf("caching %s: %w", url, err)
	}

	return body, nil
}

// Returns fs.ErrNotExist for a missing or expired entry.
func (f *Filesystem) read(url string, options GetOptions) ([]byte, error) {
	bodyPath, metaPath := f.paths(url)

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", metaPath, err)
	}
	if meta.URL != url {
		return nil, fmt.Errorf("%s belongs to %s", metaPath, meta.URL)
	}
	if !options.fresh(meta.RetrievedAt, f.TimeNow()) {
		f.logger.Debug("cache expired", "url", url, "retrieved_at", meta.RetrievedAt)
		return nil, fs.ErrNotExist
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return nil, err
	}
	if len(body) != meta.Size {
		return nil, fmt.Errorf("%s: expected %d bytes, found %d", bodyPath, meta.Size, len(body))
	}

	return body, nil
}

// The body is renamed into place before its sidecar, so a reader never
// sees fresh metadata next to a partial body.
func (f *Filesystem) write(url string, body []byte) error {
	bodyPath, metaPath := f.paths(url)

	meta, err := json.Marshal(sidecar{
		URL:         url,
		RetrievedAt: f.TimeNow().UTC(),
		Size:        len(body),
	})
	if err != nil {
		return err
	}

	if err := writeAtomic(bodyPath, body); err != nil {
		return err
	}
	return writeAtomic(metaPath, meta)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
