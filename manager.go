package gtfs

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"stopboard.dev/gtfs/downloader"
	"stopboard.dev/gtfs/parse"
	"stopboard.dev/gtfs/storage"
)

const (
	DefaultStaticRefreshInterval = 12 * time.Hour
	DefaultStaticTimeout         = 60 * time.Second
	DefaultStaticMaxSize         = 800 << 20 // 800 MB
)

// Manager keeps the Engine's Schedule in sync with a static GTFS
// archive.
//
// Parsed archives are kept in storage keyed by their SHA-256, so an
// unchanged archive is never parsed twice.
type Manager struct {
	StaticURL             string
	StaticHeaders         map[string]string
	StaticTimeout         time.Duration
	StaticMaxSize         int
	StaticRefreshInterval time.Duration
	Downloader            downloader.Downloader

	storage storage.Storage
	engine  *Engine
	logger  *slog.Logger

	// Serializes refreshes
	mutex       sync.Mutex
	currentHash string
}

// Creates a new Manager publishing schedules from staticURL to engine.
//
// By default, downloads aren't cached, as parsed feeds are persisted
// in storage.
func NewManager(s storage.Storage, engine *Engine, staticURL string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		StaticURL:             staticURL,
		StaticTimeout:         DefaultStaticTimeout,
		StaticMaxSize:         DefaultStaticMaxSize,
		StaticRefreshInterval: DefaultStaticRefreshInterval,
		Downloader:            downloader.NewMemoryDownloader(),

		storage: s,
		engine:  engine,
		logger:  logger.With("component", "manager"),
	}
}

// Downloads the static archive and publishes it.
//
// On failure the Engine keeps its current Schedule.
func (m *Manager) Refresh(ctx context.Context) error {
	body, err := m.Downloader.Get(
		ctx,
		m.StaticURL,
		m.StaticHeaders,
		downloader.GetOptions{
			Cache:   false,
			Timeout: m.StaticTimeout,
			MaxSize: m.StaticMaxSize,
		},
	)
	if err != nil {
		return fmt.Errorf("downloading feed at %s: %w", m.StaticURL, err)
	}

	return m.Import(ctx, m.StaticURL, body)
}

// Parses (unless already stored) and publishes a static archive. url
// identifies the archive's origin in feed metadata.
func (m *Manager) Import(ctx context.Context, url string, body []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	hash := fmt.Sprintf("%x", sha256.Sum256(body))
	logger := m.logger.With("url", url, "hash", hash[:12])

	if hash == m.currentHash {
		logger.Debug("feed unchanged")
		return nil
	}

	metadata, known, err := m.ensureStored(url, hash, body)
	if err != nil {
		return err
	}

	schedule, err := m.buildSchedule(metadata)
	if err != nil {
		return err
	}

	// Only feeds that make a usable schedule are recorded
	if !known {
		err = m.storage.WriteFeedMetadata(metadata)
		if err != nil {
			return fmt.Errorf("writing metadata: %w", err)
		}
	}

	m.engine.Swap(schedule)
	m.currentHash = hash

	logger.Info(
		"schedule published",
		"calendar_start", metadata.CalendarStartDate,
		"calendar_end", metadata.CalendarEndDate,
		"size_bytes", len(body),
	)

	return nil
}

// Makes sure the archive is parsed into storage and returns its
// metadata. known reports whether a metadata record for this URL and
// hash already exists.
func (m *Manager) ensureStored(url string, hash string, body []byte) (*storage.FeedMetadata, bool, error) {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{Hash: hash})
	if err != nil {
		return nil, false, fmt.Errorf("listing feeds: %w", err)
	}

	if len(feeds) > 0 {
		// Already parsed, possibly for another URL
		for _, feed := range feeds {
			if feed.URL == url {
				return feed, true, nil
			}
		}

		metadata := *feeds[0]
		metadata.URL = url
		metadata.RetrievedAt = time.Now().UTC()
		return &metadata, false, nil
	}

	writer, err := m.storage.GetWriter(hash)
	if err != nil {
		return nil, false, fmt.Errorf("getting writer: %w", err)
	}

	metadata, err := parse.ParseStatic(writer, body)
	if err != nil {
		writer.Close()
		return nil, false, fmt.Errorf("parsing: %w", err)
	}

	metadata.Hash = hash
	metadata.URL = url
	metadata.RetrievedAt = time.Now().UTC()

	return metadata, false, nil
}

func (m *Manager) buildSchedule(metadata *storage.FeedMetadata) (*Schedule, error) {
	reader, err := m.storage.GetReader(metadata.Hash)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	schedule, err := NewSchedule(reader)
	if err != nil {
		return nil, fmt.Errorf("building schedule: %w", err)
	}

	return schedule, nil
}

// Publishes the most recently retrieved stored feed for the static
// URL that covers today. Returns ErrNoActiveFeed if there is none.
func (m *Manager) LoadStored(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: m.StaticURL})
	if err != nil {
		return fmt.Errorf("listing feeds: %w", err)
	}

	sort.SliceStable(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})

	now := m.engine.Now()
	for _, feed := range feeds {
		if !feedActive(feed, now) {
			continue
		}

		schedule, err := m.buildSchedule(feed)
		if err != nil {
			return err
		}

		m.engine.Swap(schedule)
		m.currentHash = feed.Hash
		m.logger.Info("stored schedule published", "hash", feed.Hash, "retrieved_at", feed.RetrievedAt)
		return nil
	}

	return ErrNoActiveFeed
}

// Loads a stored feed if possible, then refreshes every
// StaticRefreshInterval until ctx is cancelled. Refresh failures are
// logged and retried on the next tick.
func (m *Manager) Run(ctx context.Context) error {
	err := m.LoadStored(ctx)
	if err != nil && !errors.Is(err, ErrNoActiveFeed) {
		m.logger.Warn("loading stored feed", "error", err)
	}

	if err := m.Refresh(ctx); err != nil {
		m.logger.Error("refreshing feed", "error", err)
	}

	ticker := time.NewTicker(m.StaticRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				m.logger.Error("refreshing feed", "error", err)
			}
		}
	}
}

// Checks whether the feed's calendar covers now's civil date. Feeds
// without a known timezone are evaluated in now's location.
func feedActive(feed *storage.FeedMetadata, now time.Time) bool {
	if feed.Timezone != "" {
		if tz, err := time.LoadLocation(feed.Timezone); err == nil {
			now = now.In(tz)
		}
	}

	today := now.Format("20060102")

	if feed.CalendarStartDate != "" && feed.CalendarStartDate > today {
		return false
	}
	if feed.CalendarEndDate != "" && feed.CalendarEndDate < today {
		return false
	}

	return true
}
