package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"threadpost/internal/config"
	"threadpost/internal/schedule"
	logx "threadpost/pkg/logx"
)

const upcomingLimit = 5

// PostNow publishes schedule item idx immediately and records it.
func (a *App) PostNow(ctx context.Context, idx int) error {
	defer a.flush()
	it, id, err := a.sched.PublishIndex(ctx, idx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "published #%d (%s %s) as %s\n", idx, it.Date, it.Time, id)
	fmt.Fprintf(a.out, "  %s\n", it.Summary(100))
	return nil
}

// Batch publishes the head of the upload list.
func (a *App) Batch(ctx context.Context) error {
	defer a.flush()
	rep, err := a.sched.Batch(ctx)
	fmt.Fprintf(a.out, "batch: %d listed, %d selected, %d published, %d failed\n",
		rep.Listed, rep.Selected, rep.Published, rep.Failed)
	return err
}

// TestPost publishes an unrecorded text post to check credentials end to end.
func (a *App) TestPost(ctx context.Context) error {
	defer a.flush()
	text := fmt.Sprintf("threadpost test post\n\n%s", time.Now().Format("2006-01-02 15:04:05"))
	id, err := a.sched.Probe(ctx, text)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "test post published as %s\n", id)
	return nil
}

// Status prints ledger totals, the most recent publication and the next
// planned items. A schedule that cannot be read is reported, not returned.
func (a *App) Status(ctx context.Context) error {
	st := a.ledger.Stats()
	w := a.out
	fmt.Fprintf(w, "published total: %d\n", st.Total)
	fmt.Fprintf(w, "published today: %d\n", st.PublishedToday)
	if e := st.MostRecent; e != nil {
		fmt.Fprintln(w, "last publication:")
		fmt.Fprintf(w, "  at:   %s\n", e.PublishedAt.In(a.sched.Location()).Format(time.RFC3339))
		fmt.Fprintf(w, "  type: %s\n", e.ContentType)
		fmt.Fprintf(w, "  id:   %s\n", e.PublicationID)
	}

	next, err := a.sched.Upcoming(ctx, upcomingLimit)
	if err != nil {
		a.log.Warn("schedule unreadable", logx.Err(err))
		fmt.Fprintf(w, "schedule unreadable: %v\n", err)
		return nil
	}
	writeUpcoming(w, next)
	return nil
}

func writeUpcoming(w io.Writer, next []schedule.Planned) {
	if len(next) == 0 {
		fmt.Fprintln(w, "no upcoming items")
		return
	}
	fmt.Fprintf(w, "next %d:\n", len(next))
	for i, p := range next {
		kind := p.Item.ContentType
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(w, "  %d. %s %s  %s  %s\n", i+1, p.Item.Date, p.Item.Time, kind, p.Item.Summary(40))
	}
}

// PrintConfig writes cfg as indented JSON with secrets masked.
func PrintConfig(w io.Writer, cfg *config.Config) error {
	b, err := json.MarshalIndent(config.Redacted(cfg), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}
