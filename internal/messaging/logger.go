package messaging

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

const levelTrace = slog.LevelDebug - 4

// SlogAdapter routes watermill's internal logging into the service logger.
type SlogAdapter struct {
	log *slog.Logger
}

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{log: logger.With(slog.String("component", "watermill"))}
}

func (a *SlogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(attrs(fields), slog.Any("err", err))...)
}

func (a *SlogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, attrs(fields)...)
}

func (a *SlogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, attrs(fields)...)
}

func (a *SlogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Log(context.Background(), levelTrace, msg, attrs(fields)...)
}

func (a *SlogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &SlogAdapter{log: a.log.With(attrs(fields)...)}
}

func attrs(fields watermill.LogFields) []any {
	out := make([]any, 0, len(fields))
	for k, v := range fields {
		out = append(out, slog.Any(k, v))
	}
	return out
}
