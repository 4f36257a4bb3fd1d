package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "threadpost/pkg/logx"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS published (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    date           TEXT NOT NULL,
    time           TEXT NOT NULL,
    text           TEXT NOT NULL,
    hashtags       TEXT NOT NULL DEFAULT '',
    image_url      TEXT NOT NULL DEFAULT '',
    content_type   TEXT NOT NULL DEFAULT '',
    published_at   TEXT NOT NULL,
    publication_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS published_identity ON published(date, time, text);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("ledger.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// Durability matters more than write throughput here.
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrLedgerCorrupt, err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, time, text, hashtags, image_url, content_type, published_at, publication_id
		 FROM published ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerCorrupt, err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.Date, &e.Time, &e.Text, &e.Hashtags, &e.MediaURL, &e.ContentType, &at, &e.PublicationID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedgerCorrupt, err)
		}
		e.PublishedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("%w: published_at %q: %v", ErrLedgerCorrupt, at, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerCorrupt, err)
	}
	return out, nil
}

func (s *sqliteStore) Commit(ctx context.Context, all []Entry, added Entry) error {
	_ = all
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO published(date, time, text, hashtags, image_url, content_type, published_at, publication_id)
		 VALUES(?,?,?,?,?,?,?,?)`,
		added.Date, added.Time, added.Text, added.Hashtags, added.MediaURL, added.ContentType,
		added.PublishedAt.Format(time.RFC3339Nano), added.PublicationID,
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
