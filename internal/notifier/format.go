package notifier

import (
	"fmt"
	"strings"

	"threadpost/internal/eventbus"
)

// Format renders an event as a message. ok is false for events that are not
// sent; published posts are only sent when published is true.
func Format(e eventbus.Event, published bool) (text string, ok bool) {
	switch e.Type {
	case eventbus.TypePostPublished:
		if !published {
			return "", false
		}
		p, _ := e.Data.(eventbus.Post)
		return fmt.Sprintf("✅ Published %s %s (%s)\nid: %s\n%s", p.Date, p.Time, p.MediaType, p.PublicationID, p.Summary), true

	case eventbus.TypePostFailed:
		p, _ := e.Data.(eventbus.Post)
		return fmt.Sprintf("⚠️ Publish failed at %s: %s %s\n%s\n%s", p.Stage, p.Date, p.Time, p.Summary, p.Err), true

	case eventbus.TypeLedgerWriteFailed:
		p, _ := e.Data.(eventbus.Post)
		var b strings.Builder
		b.WriteString("🚨 Ledger write failed after publish\n")
		fmt.Fprintf(&b, "post %s (%s %s) is live but not recorded and may be published again.\n", p.PublicationID, p.Date, p.Time)
		b.WriteString(p.Err)
		return b.String(), true

	case eventbus.TypeTickFailed:
		f, _ := e.Data.(eventbus.Failure)
		return fmt.Sprintf("⚠️ Tick failed (%d/%d): %s", f.Attempt, f.Budget, f.Err), true

	case eventbus.TypeSchedulerFatal:
		f, _ := e.Data.(eventbus.Failure)
		return fmt.Sprintf("🚨 Scheduler stopped after %d failures: %s", f.Attempt, f.Err), true
	}
	return "", false
}
