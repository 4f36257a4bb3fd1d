package schedule

import (
	"context"
	"fmt"

	"threadpost/internal/content"
	logx "threadpost/pkg/logx"
)

// PublishIndex publishes the item at idx in the schedule source right away,
// ignoring its scheduled time. Ledgered items are refused with ErrAlreadyPublished.
func (s *Scheduler) PublishIndex(ctx context.Context, idx int) (content.Item, string, error) {
	items, err := s.src.List(ctx)
	if err != nil {
		return content.Item{}, "", err
	}
	if idx < 0 || idx >= len(items) {
		last := len(items) - 1
		return content.Item{}, "", fmt.Errorf("%w: %d (max index %d)", ErrIndexOutOfRange, idx, last)
	}
	it := items[idx]
	if s.ledger.IsPublished(it) {
		return it, "", fmt.Errorf("%w: %s %s %q", ErrAlreadyPublished, it.Date, it.Time, it.Summary(40))
	}

	log := s.log.With(logx.Int("index", idx), logx.String("date", it.Date), logx.String("time", it.Time))
	log.Info("publishing now")
	id, err := s.publish(ctx, s.config(), it, log)
	if err != nil {
		return it, "", err
	}
	return it, id, nil
}

// Probe publishes a text-only post through the full remote protocol without
// recording it. Used to check credentials.
func (s *Scheduler) Probe(ctx context.Context, text string) (string, error) {
	id, err := s.stageAndConfirm(ctx, s.config(), text, "", s.log.With(logx.String("op", "probe")))
	if err != nil {
		return "", err
	}
	s.log.Info("probe published", logx.String("post_id", id))
	return id, nil
}
