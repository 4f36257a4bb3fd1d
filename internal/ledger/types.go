package ledger

import (
	"context"
	"errors"
	"time"

	"threadpost/internal/content"
)

var (
	ErrLedgerCorrupt     = errors.New("ledger corrupt")
	ErrLedgerWriteFailed = errors.New("ledger write failed")
	ErrUnknownDriver     = errors.New("unknown ledger driver")
)

// Config configures the ledger backend.
//
// Driver values: "file" (default), "sqlite", "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Location    *time.Location

	// ResetOnCorrupt moves an unreadable file aside and starts empty instead of failing.
	// Development fallback only.
	ResetOnCorrupt bool
}

// Entry is an immutable record of one confirmed publication.
type Entry struct {
	content.Item
	PublishedAt   time.Time `json:"posted_at"`
	PublicationID string    `json:"post_id"`
}

// Stats is a read-only aggregate over the ledger.
type Stats struct {
	Total          int
	PublishedToday int
	MostRecent     *Entry
}

// Store persists entries. Commit receives the full entry list including added;
// backends may rewrite everything or only store the new entry.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Commit(ctx context.Context, all []Entry, added Entry) error
	Close() error
}
