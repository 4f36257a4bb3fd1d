package schedule

import (
	"context"
	"errors"
	"fmt"

	"threadpost/internal/content"
	logx "threadpost/pkg/logx"
)

// BatchReport summarizes a batch run.
type BatchReport struct {
	Listed    int
	Selected  int
	Published int
	Failed    int
}

// Batch publishes the first BatchMaxPosts unpublished items of the upload
// list in order, waiting BatchInterval after each successful publish except
// the last. The schedule window is not consulted.
func (s *Scheduler) Batch(ctx context.Context) (BatchReport, error) {
	if s.uploads == nil {
		return BatchReport{}, errors.New("schedule: no upload list configured")
	}
	cfg := s.config()

	items, err := s.uploads.List(ctx)
	if err != nil {
		return BatchReport{}, err
	}
	rep := BatchReport{Listed: len(items)}

	var picked []content.Item
	for _, it := range items {
		if len(picked) >= cfg.BatchMaxPosts {
			break
		}
		if s.ledger.IsPublished(it) {
			continue
		}
		picked = append(picked, it)
	}
	rep.Selected = len(picked)

	s.log.Info("batch started",
		logx.Int("listed", rep.Listed),
		logx.Int("selected", rep.Selected),
		logx.Int("max_posts", cfg.BatchMaxPosts),
		logx.Duration("interval", cfg.BatchInterval),
	)

	rep.Published, rep.Failed, err = s.dispatch(ctx, cfg, picked, cfg.BatchInterval)
	if err != nil {
		return rep, err
	}
	s.log.Info("batch finished", logx.Int("published", rep.Published), logx.Int("failed", rep.Failed))
	if rep.Failed > 0 {
		return rep, fmt.Errorf("batch: %d of %d items failed", rep.Failed, rep.Selected)
	}
	return rep, nil
}
