package eventbus

import "time"

const (
	TypeTickDone          = "tick.done"
	TypePostPublished     = "post.published"
	TypePostFailed        = "post.failed"
	TypeLedgerWriteFailed = "ledger.write_failed"
	TypeTickFailed        = "tick.failed"
	TypeSchedulerFatal    = "scheduler.fatal"
	TypeConfigReloaded    = "config.reloaded"
)

// Post identifies the item an event is about.
type Post struct {
	Date          string
	Time          string
	Summary       string
	MediaType     string
	PublicationID string
	Stage         string // stage | poll | confirm | record
	Err           string
	Took          time.Duration
}

// Tick summarizes one scheduler pass.
type Tick struct {
	Candidates int
	Due        int
	Published  int
	Failed     int
	Took       time.Duration
}

// Failure carries a tick or process level error.
type Failure struct {
	Err      string
	Attempt  int
	Budget   int
	Terminal bool
}
