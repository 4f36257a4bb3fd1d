package content

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrSourceUnavailable = errors.New("schedule source unavailable")

// Source enumerates content items in a stable order.
type Source interface {
	List(ctx context.Context) ([]Item, error)
}

// CSVSource reads items from a delimited file with a header row.
//
// Recognized columns: date, time, text, hashtags, image_url, content_type.
// The file is re-read on every List call so edits are picked up on the next tick.
type CSVSource struct {
	Path string
}

func NewCSVSource(path string) *CSVSource { return &CSVSource{Path: path} }

func (s *CSVSource) List(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()

	items, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.Path, err)
	}
	return items, nil
}

// ParseCSV maps CSV records to items.
//
// Rows whose field count does not match the header are skipped, like blank rows.
// A missing date, time or text column is an error.
func ParseCSV(r io.Reader) ([]Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		idx[h] = i
	}
	for _, col := range []string{"date", "time", "text"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	out := make([]Item, 0, 32)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if len(rec) != len(header) {
			continue
		}
		it := Item{
			Date:        get(rec, "date"),
			Time:        get(rec, "time"),
			Text:        get(rec, "text"),
			Hashtags:    get(rec, "hashtags"),
			MediaURL:    get(rec, "image_url"),
			ContentType: get(rec, "content_type"),
		}
		if it.Date == "" && it.Time == "" && it.Text == "" {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// StaticSource serves a fixed list. Handy for tests and one-off runs.
type StaticSource []Item

func (s StaticSource) List(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Item(nil), s...), nil
}
