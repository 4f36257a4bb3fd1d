// Package notifier delivers short operator messages to a Telegram chat.
//
// Messages come from two places: scheduler events on the event bus and
// high-severity log records forwarded by the logger's alert sink. Both go
// through one bounded queue and one rate limiter; enqueueing never blocks,
// and a full queue drops the message.
package notifier
