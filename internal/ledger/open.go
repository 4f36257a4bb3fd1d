package ledger

import (
	"context"
	"fmt"
	"strings"

	logx "threadpost/pkg/logx"
)

// OpenStore initializes the configured backend without loading it.
func OpenStore(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// Open opens the backend and loads it into a Ledger.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Ledger, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	st, err := OpenStore(cfg, log)
	if err != nil {
		return nil, err
	}
	l := New(st, cfg.Location, log)
	if err := l.Load(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return l, nil
}
