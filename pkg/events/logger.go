package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// busLogger routes the event bus's watermill logging into zerolog, tagged
// with component=event-bus. Watermill logs every publish and subscribe, so
// its info output is demoted to debug and its debug output to trace.
type busLogger struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = (*busLogger)(nil)

// NewWatermill wraps logger for use as the bus's watermill logger.
func NewWatermill(logger zerolog.Logger) watermill.LoggerAdapter {
	return &busLogger{logger: logger.With().Str("component", "event-bus").Logger()}
}

func (b *busLogger) Error(msg string, err error, fields watermill.LogFields) {
	b.logger.Error().Fields(busFields(fields)).Err(err).Msg(msg)
}

func (b *busLogger) Info(msg string, fields watermill.LogFields) {
	b.logger.Debug().Fields(busFields(fields)).Msg(msg)
}

func (b *busLogger) Debug(msg string, fields watermill.LogFields) {
	b.logger.Trace().Fields(busFields(fields)).Msg(msg)
}

func (b *busLogger) Trace(msg string, fields watermill.LogFields) {
	b.logger.Trace().Fields(busFields(fields)).Msg(msg)
}

func (b *busLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &busLogger{logger: b.logger.With().Fields(busFields(fields)).Logger()}
}

// busFields renames watermill's message_uuid to event_id, the name the rest
// of the logs use for a published event.
func busFields(fields watermill.LogFields) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if k == "message_uuid" {
			k = "event_id"
		}
		out[k] = v
	}
	return out
}
