package logger

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillAdapter routes Watermill's internal logging into zerolog
type WatermillAdapter struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = WatermillAdapter{}

// NewWatermillAdapter wraps l for use by Watermill publishers and subscribers
func NewWatermillAdapter(l zerolog.Logger) WatermillAdapter {
	return WatermillAdapter{logger: Component(l, "events")}
}

func (a WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return WatermillAdapter{logger: a.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
