package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	logx "threadpost/pkg/logx"
)

// fileStore keeps the ledger as one JSON array.
//
// Every commit rewrites the whole file through <path>.tmp + rename so a crash
// mid-write never leaves a truncated ledger behind.
type fileStore struct {
	path           string
	resetOnCorrupt bool
	log            logx.Logger
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("ledger.path is required for file driver")
	}
	return &fileStore{path: cfg.Path, resetOnCorrupt: cfg.ResetOnCorrupt, log: log}, nil
}

func (s *fileStore) Load(ctx context.Context) ([]Entry, error) {
	_ = ctx
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info("no ledger file yet; starting empty", logx.String("path", s.path))
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		if !s.resetOnCorrupt {
			return nil, fmt.Errorf("%w: %s: %v", ErrLedgerCorrupt, s.path, err)
		}
		aside := s.path + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
		if rerr := os.Rename(s.path, aside); rerr != nil {
			return nil, fmt.Errorf("%w: %s: %v (move aside failed: %v)", ErrLedgerCorrupt, s.path, err, rerr)
		}
		s.log.Warn("ledger corrupt; moved aside and starting empty",
			logx.String("path", s.path),
			logx.String("moved_to", aside),
			logx.Err(err),
		)
		return []Entry{}, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *fileStore) Commit(ctx context.Context, all []Entry, added Entry) error {
	_ = ctx
	_ = added
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *fileStore) Close() error { return nil }
