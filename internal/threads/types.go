package threads

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrStageRejected = errors.New("stage rejected")
	ErrPollFailed    = errors.New("container processing failed")
	ErrConfirmFailed = errors.New("confirm failed")
	// ErrTransient marks network errors, 5xx and 429 responses.
	ErrTransient = errors.New("transient api error")
)

type MediaType string

const (
	MediaText  MediaType = "TEXT"
	MediaImage MediaType = "IMAGE"
)

// ContainerStatus is the remote processing state of a staged container.
type ContainerStatus string

const (
	StatusInProgress ContainerStatus = "IN_PROGRESS"
	StatusFinished   ContainerStatus = "FINISHED"
	StatusError      ContainerStatus = "ERROR"
	StatusExpired    ContainerStatus = "EXPIRED"
	StatusPublished  ContainerStatus = "PUBLISHED"
)

// Container is the staging handle returned by Stage.
type Container struct {
	ID        string
	MediaType MediaType
	StagedAt  time.Time
}

// Status is one status query result.
type Status struct {
	Status       ContainerStatus `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// APIError is a decoded Graph API error envelope.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "threads api: http %d", e.StatusCode)
	if e.Type != "" {
		b.WriteString(" ")
		b.WriteString(e.Type)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " code=%d", e.Code)
	}
	if e.Subcode != 0 {
		fmt.Fprintf(&b, " subcode=%d", e.Subcode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Transient reports whether retrying the same request later may succeed.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Is lets errors.Is(err, ErrTransient) match transient API errors.
func (e *APIError) Is(target error) bool {
	return target == ErrTransient && e.Transient()
}

// PollError describes why a container never became ready.
type PollError struct {
	ContainerID string
	// Remote is true when the platform reported ERROR (permanent).
	Remote bool
	// Timeout is true when attempts ran out while the container was still processing.
	Timeout  bool
	Attempts int
	Message  string
	Err      error
}

func (e *PollError) Error() string {
	switch {
	case e.Remote:
		return fmt.Sprintf("container %s failed: %s", e.ContainerID, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("container %s not ready after %d attempts: %v", e.ContainerID, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("container %s not ready after %d attempts (last status %s)", e.ContainerID, e.Attempts, e.Message)
	}
}

func (e *PollError) Unwrap() error { return e.Err }

func (e *PollError) Is(target error) bool { return target == ErrPollFailed }
