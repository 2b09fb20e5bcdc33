package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"stopboard.dev/gtfs/model"
)

// PSQLStorage keeps all feeds in one set of tables, with every row
// tagged by its feed hash. Rows are loaded with COPY.
type PSQLStorage struct {
	db *sql.DB
}

func psqlBind(n int) string { return "$" + strconv.Itoa(n) }

func psqlTableNames() []string {
	names := []string{"feed_tables"}
	for _, table := range model.Tables {
		names = append(names, sqlTables[table].name)
	}
	return names
}

func psqlSchema() string {
	var b strings.Builder
	b.WriteString(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    timezone TEXT NOT NULL,
    PRIMARY KEY (hash, url)
);
CREATE TABLE IF NOT EXISTS feed_tables (
    hash TEXT NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (hash, name)
);
`)
	for _, table := range model.Tables {
		def := sqlTables[table]
		b.WriteString(def.ddl("hash TEXT NOT NULL", "seq BIGSERIAL"))
		fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s_hash ON %s (hash);\n", def.name, def.name)
	}
	return b.String()
}

// Connects to Postgres and creates any missing tables. With clearDB
// set, all existing tables are dropped first; meant for tests.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if clearDB {
		drop := "DROP TABLE IF EXISTS feed, " + strings.Join(psqlTableNames(), ", ")
		if _, err := db.Exec(drop); err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing database: %w", err)
		}
	}

	if _, err := db.Exec(psqlSchema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) Close() error {
	return s.db.Close()
}

func (s *PSQLStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	return listFeeds(s.db, psqlBind, filter)
}

func (s *PSQLStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	return upsertFeed(s.db, psqlBind, feed)
}

// A hash that was never written reads back as a feed without tables.
func (s *PSQLStorage) GetReader(hash string) (FeedReader, error) {
	return &sqlFeedReader{
		db:    s.db,
		where: "WHERE hash = $1",
		args:  []any{hash},
		order: "seq",
	}, nil
}

// Discards any rows previously written under hash.
func (s *PSQLStorage) GetWriter(hash string) (FeedWriter, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, name := range psqlTableNames() {
		if _, err := tx.Exec("DELETE FROM "+name+" WHERE hash = $1", hash); err != nil {
			return nil, fmt.Errorf("clearing %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("clearing feed %s: %w", hash, err)
	}

	return &sqlFeedWriter{
		db:    s.db,
		scope: []any{hash},
		markPresent: func(tx *sql.Tx, table model.Table) error {
			_, err := tx.Exec(
				"INSERT INTO feed_tables (hash, name) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				hash, string(table))
			return err
		},
		prepare: func(tx *sql.Tx, t sqlTable) (*sql.Stmt, error) {
			return tx.Prepare(pq.CopyIn(t.name, append([]string{"hash"}, t.columnNames()...)...))
		},
		buffered: true,
	}, nil
}
