package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Interval is a parsed check interval.
//
// Accepted forms:
//   - duration: "5m", "1h30m"
//   - HH:MM: "00:05" (five minutes), "01:30"
//   - cron: "*/5 * * * *", "@hourly", "@every 5m"
//
// "cron:" and "every:" prefixes force the kind.
type Interval struct {
	Raw      string
	Source   string // cron | duration | hhmm
	Every    time.Duration
	Schedule cron.Schedule
}

// Next returns the first activation strictly after t.
func (iv Interval) Next(t time.Time) time.Time { return iv.Schedule.Next(t) }

func (iv Interval) String() string {
	if iv.Source == "cron" {
		return "cron(" + iv.Raw + ")"
	}
	return "every " + iv.Every.String()
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseInterval parses a check interval string.
func ParseInterval(raw string) (Interval, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Interval{}, fmt.Errorf("check interval required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseEvery(strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	}

	iv, err := parseEvery(s)
	if err != nil {
		return Interval{}, fmt.Errorf(
			"invalid check interval %q (use a duration like '5m', HH:MM like '00:05', or cron like '*/5 * * * *')",
			raw,
		)
	}
	return iv, nil
}

func parseCron(expr string) (Interval, error) {
	if expr == "" {
		return Interval{}, fmt.Errorf("cron expression required")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Interval{Raw: expr, Source: "cron", Schedule: sched}, nil
}

func parseEvery(v string) (Interval, error) {
	if v == "" {
		return Interval{}, fmt.Errorf("interval required")
	}
	src := "duration"
	var (
		d   time.Duration
		err error
	)
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		src = "hhmm"
		d, err = hhmm(m[1], m[2])
	} else {
		d, err = time.ParseDuration(v)
	}
	if err != nil {
		return Interval{}, err
	}
	if d < time.Second {
		return Interval{}, fmt.Errorf("interval must be at least 1s")
	}
	return Interval{Raw: v, Source: src, Every: d, Schedule: cron.Every(d)}, nil
}

func hhmm(h, m string) (time.Duration, error) {
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, err
	}
	mm, err := strconv.Atoi(m)
	if err != nil {
		return 0, err
	}
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes %q", m)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}
