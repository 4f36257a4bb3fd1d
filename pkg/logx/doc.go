// Package logx is threadpost's structured logging layer on top of zerolog.
//
// A Logger is a small value that can be copied freely and extended with
// With. Loggers obtained from a Service follow its configuration when
// Service.Apply swaps sinks or levels at runtime. Sinks are a readable console,
// a JSON file and an optional alert sink that forwards important records to
// an AlertSender.
package logx
