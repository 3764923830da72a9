package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds the process logger and installs it as the zerolog global.
// Format "console" gives human readable output; anything else is JSON.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg LoggingConfig, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// NewSlogLogger adapts logger for libraries that only accept *slog.Logger
// (River), so their records share the zerolog output and level.
func NewSlogLogger(logger zerolog.Logger, component string) *slog.Logger {
	return slog.New(&zerologHandler{logger: logger.With().Str("component", component).Logger()})
}

type zerologHandler struct {
	logger zerolog.Logger
	prefix string
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= zerologLevel(level)
}

func (h *zerologHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(zerologLevel(record.Level))
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(event, h.prefix, attr)
		return true
	})
	event.Msg(record.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	ctx := h.logger.With()
	for _, attr := range attrs {
		ctx = ctx.Interface(h.prefix+attr.Key, attr.Value.Resolve().Any())
	}
	return &zerologHandler{logger: ctx.Logger(), prefix: h.prefix}
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &zerologHandler{logger: h.logger, prefix: h.prefix + name + "."}
}

func appendAttr(event *zerolog.Event, prefix string, attr slog.Attr) {
	value := attr.Value.Resolve()
	key := prefix + attr.Key
	switch value.Kind() {
	case slog.KindGroup:
		if attr.Key != "" {
			prefix = key + "."
		}
		for _, nested := range value.Group() {
			appendAttr(event, prefix, nested)
		}
	case slog.KindString:
		event.Str(key, value.String())
	case slog.KindInt64:
		event.Int64(key, value.Int64())
	case slog.KindBool:
		event.Bool(key, value.Bool())
	case slog.KindDuration:
		event.Dur(key, value.Duration())
	case slog.KindTime:
		event.Time(key, value.Time())
	default:
		if err, ok := value.Any().(error); ok {
			event.AnErr(key, err)
			return
		}
		event.Interface(key, value.Any())
	}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
