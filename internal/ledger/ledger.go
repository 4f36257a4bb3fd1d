package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"threadpost/internal/content"
	logx "threadpost/pkg/logx"
)

// Ledger is the in-memory view of a Store plus the identity index.
//
// It is safe for concurrent use, although the scheduler only ever calls it
// from one goroutine.
type Ledger struct {
	store Store
	log   logx.Logger
	loc   *time.Location
	now   func() time.Time

	mu      sync.RWMutex
	entries []Entry
	index   map[content.Identity]int
}

// New wraps store. Call Load before use.
func New(store Store, loc *time.Location, log logx.Logger) *Ledger {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		store: store,
		log:   log,
		loc:   loc,
		now:   time.Now,
		index: map[content.Identity]int{},
	}
}

// Load reads persisted entries. A missing backing file yields an empty ledger.
func (l *Ledger) Load(ctx context.Context) error {
	entries, err := l.store.Load(ctx)
	if err != nil {
		return err
	}
	idx := make(map[content.Identity]int, len(entries))
	for i, e := range entries {
		idx[e.Identity()] = i
	}

	l.mu.Lock()
	l.entries = entries
	l.index = idx
	l.mu.Unlock()

	l.log.Info("ledger loaded", logx.Int("entries", len(entries)))
	return nil
}

// IsPublished reports whether an item with the same (date, time, text) was recorded.
func (l *Ledger) IsPublished(it content.Item) bool {
	l.mu.RLock()
	_, ok := l.index[it.Identity()]
	l.mu.RUnlock()
	return ok
}

// Append records it as published and persists the ledger before returning.
//
// On a persistence failure the entry is dropped from memory too and the error
// wraps ErrLedgerWriteFailed: the remote post exists but the ledger does not
// know it, so the next tick may publish it again.
func (l *Ledger) Append(ctx context.Context, it content.Item, publicationID string) error {
	e := Entry{Item: it, PublishedAt: l.now(), PublicationID: publicationID}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.index[it.Identity()]; ok {
		l.log.Warn("ledger append for already recorded item", logx.String("date", it.Date), logx.String("time", it.Time))
	}

	all := make([]Entry, len(l.entries), len(l.entries)+1)
	copy(all, l.entries)
	all = append(all, e)

	if err := l.store.Commit(ctx, all, e); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}
	l.entries = all
	l.index[it.Identity()] = len(all) - 1
	return nil
}

// Entries returns a copy of all entries in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Stats counts entries; "today" is the current calendar day in the ledger's location.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now().In(l.loc)
	y, m, d := now.Date()

	st := Stats{Total: len(l.entries)}
	for i := range l.entries {
		e := &l.entries[i]
		py, pm, pd := e.PublishedAt.In(l.loc).Date()
		if py == y && pm == m && pd == d {
			st.PublishedToday++
		}
		if st.MostRecent == nil || !e.PublishedAt.Before(st.MostRecent.PublishedAt) {
			st.MostRecent = e
		}
	}
	if st.MostRecent != nil {
		cp := *st.MostRecent
		st.MostRecent = &cp
	}
	return st
}

func (l *Ledger) Close() error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.Close()
}
