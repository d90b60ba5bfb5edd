package events

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// LogSink writes every event to the structured logger.
func LogSink(logger *slog.Logger) Handler {
	return func(e Event) {
		logger.Debug("economy event", slog.String("kind", e.Kind()), slog.Any("event", e))
	}
}

// Publisher is the slice of *nats.Conn the NATS sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink forwards events as JSON to "<prefix>.<kind>". Publishing is best
// effort; failures are logged and dropped.
func NATSSink(pub Publisher, prefix string, logger *slog.Logger) Handler {
	prefix = strings.TrimSuffix(prefix, ".")
	return func(e Event) {
		payload, err := json.Marshal(e)
		if err != nil {
			logger.Error("encode event", slog.String("kind", e.Kind()), slog.Any("error", err))
			return
		}
		subject := prefix + "." + e.Kind()
		if err := pub.Publish(subject, payload); err != nil {
			logger.Warn("publish event", slog.String("subject", subject), slog.Any("error", err))
		}
	}
}
