package schedule

import (
	"context"
	"sort"
	"time"

	"threadpost/internal/content"
)

// Planned is an unpublished item with its resolved instant.
type Planned struct {
	Item content.Item
	At   time.Time
}

// Upcoming returns up to n unpublished items scheduled after now, earliest
// first. Items with an invalid schedule are left out.
func Upcoming(items []content.Item, l Ledger, now time.Time, n int) []Planned {
	out := make([]Planned, 0, max(n, 0))
	for _, it := range items {
		if l.IsPublished(it) {
			continue
		}
		at, err := it.Instant(now.Location())
		if err != nil || !at.After(now) {
			continue
		}
		out = append(out, Planned{Item: it, At: at})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Upcoming lists the schedule source and returns its next n planned items.
func (s *Scheduler) Upcoming(ctx context.Context, n int) ([]Planned, error) {
	items, err := s.src.List(ctx)
	if err != nil {
		return nil, err
	}
	cfg := s.config()
	return Upcoming(items, s.ledger, s.clock.Now().In(cfg.Location), n), nil
}
