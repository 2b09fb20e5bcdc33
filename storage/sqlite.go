package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"stopboard.dev/gtfs/model"
)

const sqliteMemory = ":memory:"

type SQLiteConfig struct {
	// Keep databases as files in Directory rather than in memory.
	OnDisk    bool
	Directory string
}

// SQLiteStorage keeps each feed in a database of its own, named after
// the feed hash, plus an index database of feed metadata.
type SQLiteStorage struct {
	SQLiteConfig

	index *sql.DB

	mu    sync.Mutex
	feeds map[string]*sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	s := &SQLiteStorage{feeds: map[string]*sql.DB{}}
	if len(cfg) > 0 {
		s.SQLiteConfig = cfg[0]
	}

	source := sqliteMemory
	if s.OnDisk {
		if err := os.MkdirAll(s.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", s.Directory, err)
		}
		source = filepath.Join(s.Directory, "stopboard.db")
	}

	index, err := openSQLite(source)
	if err != nil {
		return nil, err
	}

	_, err = index.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    timezone TEXT NOT NULL,
    PRIMARY KEY (hash, url)
)`)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("creating feed table: %w", err)
	}

	s.index = index
	return s, nil
}

func openSQLite(source string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", source)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", source, err)
	}
	// Each connection to :memory: would see a database of its own.
	if source == sqliteMemory {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func sqliteSchema() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE feed_tables (name TEXT PRIMARY KEY);\n")
	for _, table := range model.Tables {
		b.WriteString(sqlTables[table].ddl())
	}
	b.WriteString("CREATE INDEX stop_times_stop_id ON stop_times (stop_id);\n")
	return b.String()
}

func sqliteBind(int) string { return "?" }

func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, db := range s.feeds {
		db.Close()
		delete(s.feeds, hash)
	}
	return s.index.Close()
}

func (s *SQLiteStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	return listFeeds(s.index, sqliteBind, filter)
}

func (s *SQLiteStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	return upsertFeed(s.index, sqliteBind, feed)
}

func (s *SQLiteStorage) feedFile(hash string) string {
	return filepath.Join(s.Directory, hash+".db")
}

func (s *SQLiteStorage) GetReader(hash string) (FeedReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, open := s.feeds[hash]
	if !open {
		if !s.OnDisk {
			return nil, fmt.Errorf("feed %s not found", hash)
		}
		path := s.feedFile(hash)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("feed %s not found: %w", hash, err)
		}
		var err error
		if db, err = openSQLite(path); err != nil {
			return nil, err
		}
		s.feeds[hash] = db
	}

	return &sqlFeedReader{db: db, order: "rowid"}, nil
}

// Starts the feed over in a fresh database.
func (s *SQLiteStorage) GetWriter(hash string) (FeedWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, open := s.feeds[hash]; open {
		db.Close()
		delete(s.feeds, hash)
	}

	source := sqliteMemory
	if s.OnDisk {
		source = s.feedFile(hash)
		if err := os.Remove(source); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing old %s: %w", source, err)
		}
	}

	db, err := openSQLite(source)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating feed schema: %w", err)
	}
	s.feeds[hash] = db

	return &sqlFeedWriter{
		db: db,
		markPresent: func(tx *sql.Tx, table model.Table) error {
			_, err := tx.Exec("INSERT OR IGNORE INTO feed_tables (name) VALUES (?)", string(table))
			return err
		},
		prepare: func(tx *sql.Tx, t sqlTable) (*sql.Stmt, error) {
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
			return tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
				t.name, strings.Join(t.columnNames(), ", "), marks))
		},
		finish: func(db *sql.DB) error {
			_, err := db.Exec("ANALYZE")
			return err
		},
	}, nil
}
