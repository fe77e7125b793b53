// Package slogx holds slog attribute helpers shared by every component so
// that log lines stay greppable by the same keys end to end.
package slogx

import "log/slog"

// Error returns an attribute with key "error" and the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Topic returns an attribute for an event topic.
func Topic(topic string) slog.Attr {
	return slog.String("topic", topic)
}

// Correlation returns an attribute for a correlation id.
func Correlation(id string) slog.Attr {
	return slog.String("correlation_id", id)
}

// EventID returns an attribute for an event id.
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// Handler returns an attribute for a handler name.
func Handler(name string) slog.Attr {
	return slog.String("handler", name)
}
