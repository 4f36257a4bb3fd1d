// Package threads is the remote publisher client for the Threads Graph API.
//
// Publishing is two-phase: Stage creates a media container (text or image),
// PollUntilReady waits for asynchronous image ingestion, Confirm publishes the
// container and returns the permanent post id. A container is used for at most
// one Confirm attempt.
//
// Only the status query is retried automatically. Stage and Confirm are not
// idempotent on the remote side, so a failed call is surfaced to the caller.
package threads
