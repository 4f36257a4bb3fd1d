package content

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidSchedule = errors.New("invalid item schedule")

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Item is one unit of scheduled work.
//
// Date and Time are kept as the raw strings from the source so the identity
// triple compares exactly what the operator wrote.
type Item struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	Text        string `json:"text"`
	Hashtags    string `json:"hashtags,omitempty"`
	MediaURL    string `json:"image_url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Identity is the dedup key of an Item.
type Identity struct {
	Date string
	Time string
	Text string
}

func (it Item) Identity() Identity {
	return Identity{Date: it.Date, Time: it.Time, Text: it.Text}
}

// HasMedia reports whether the item carries an image.
func (it Item) HasMedia() bool { return strings.TrimSpace(it.MediaURL) != "" }

// FullText is the outgoing body: text plus the optional hashtag line separated by a blank line.
func (it Item) FullText() string {
	tags := strings.TrimSpace(it.Hashtags)
	if tags == "" {
		return it.Text
	}
	return it.Text + "\n\n" + tags
}

// Instant combines Date and Time in loc.
//
// Accepted time forms are "15:04" and "15:04:05" (single-digit hours are fine).
func (it Item) Instant(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d := strings.TrimSpace(it.Date)
	t := strings.TrimSpace(it.Time)
	for _, layout := range []string{DateLayout + " " + TimeLayout, DateLayout + " 15:04:05"} {
		if at, err := time.ParseInLocation(layout, d+" "+t, loc); err == nil {
			return at, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date=%q time=%q", ErrInvalidSchedule, it.Date, it.Time)
}

// Summary is a short single-line description used in logs and status output.
func (it Item) Summary(maxRunes int) string {
	s := strings.Join(strings.Fields(it.Text), " ")
	r := []rune(s)
	if maxRunes > 0 && len(r) > maxRunes {
		return string(r[:maxRunes]) + "..."
	}
	return s
}
