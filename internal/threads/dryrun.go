package threads

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	logx "threadpost/pkg/logx"
)

// DryRun logs what would be published and returns synthetic ids. No network.
type DryRun struct {
	log logx.Logger
	n   atomic.Int64
}

func NewDryRun(log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{log: log}
}

func (d *DryRun) Stage(ctx context.Context, text, mediaURL string) (Container, error) {
	if err := ctx.Err(); err != nil {
		return Container{}, err
	}
	mt := MediaText
	if strings.TrimSpace(mediaURL) != "" {
		mt = MediaImage
	}
	id := "dryrun-container-" + strconv.FormatInt(d.n.Add(1), 10)
	d.log.Info("dry run: stage", logx.String("container_id", id), logx.String("media_type", string(mt)), logx.Int("text_len", len(text)))
	return Container{ID: id, MediaType: mt, StagedAt: time.Now()}, nil
}

func (d *DryRun) PollUntilReady(ctx context.Context, ct Container, maxAttempts int, interval time.Duration) error {
	_ = maxAttempts
	_ = interval
	d.log.Info("dry run: poll", logx.String("container_id", ct.ID))
	return ctx.Err()
}

func (d *DryRun) Confirm(ctx context.Context, ct Container) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "dryrun-" + strconv.FormatInt(d.n.Add(1), 10)
	d.log.Info("dry run: confirm", logx.String("container_id", ct.ID), logx.String("post_id", id))
	return id, nil
}
