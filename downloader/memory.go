package downloader

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	body        []byte
	retrievedAt time.Time
}

// MemoryDownloader keeps bodies in process memory. Each URL has its
// own lock, so a slow archive download doesn't hold up other URLs
// while concurrent Gets for the same URL share one fetch.
type MemoryDownloader struct {
	TimeNow func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
	locks   map[string]*sync.Mutex
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		TimeNow: time.Now,
		entries: map[string]memoryEntry{},
		locks:   map[string]*sync.Mutex{},
	}
}

func (d *MemoryDownloader) urlLock(url string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[url]
	if !ok {
		l = &sync.Mutex{}
		d.locks[url] = l
	}
	return l
}

func (d *MemoryDownloader) lookup(url string, options GetOptions) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[url]
	if !ok || !options.fresh(e.retrievedAt, d.TimeNow()) {
		return nil, false
	}
	return e.body, true
}

func (d *MemoryDownloader) Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	if !options.Cache {
		return HTTPGet(ctx, url, headers, options)
	}

	l := d.urlLock(url)
	l.Lock()
	defer l.Unlock()

	if body, ok := d.lookup(url, options); ok {
		return body, nil
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.entries[url] = memoryEntry{body: body, retrievedAt: d.TimeNow()}
	d.mu.Unlock()

	return body, nil
}
