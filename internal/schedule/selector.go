package schedule

import (
	"time"

	"threadpost/internal/content"
)

// Due reports whether instant lies within window of now, in either direction.
func Due(instant, now time.Time, window time.Duration) bool {
	d := now.Sub(instant)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// IsDue reports whether the item should fire at now. The item's date and time
// are read in now's location. An unparseable schedule returns
// content.ErrInvalidSchedule.
func IsDue(it content.Item, now time.Time, window time.Duration) (bool, error) {
	at, err := it.Instant(now.Location())
	if err != nil {
		return false, err
	}
	return Due(at, now, window), nil
}
