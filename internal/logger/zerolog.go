package logger

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rs/zerolog"
)

// ZerologLogger is a Logger backed by zerolog. It writes one JSON object per
// line and is the production backend for the server.
type ZerologLogger struct {
	z      zerolog.Logger
	prefix string
}

// JSON creates a Logger writing zerolog JSON lines for production use.
func JSON(w io.Writer, level slog.Level) Logger {
	z := zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger()
	return &ZerologLogger{z: z}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level <= slog.LevelDebug:
		return zerolog.DebugLevel
	case level <= slog.LevelInfo:
		return zerolog.InfoLevel
	case level <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (l *ZerologLogger) Debug(msg string, args ...any) { l.emit(l.z.Debug(), msg, args) }
func (l *ZerologLogger) Info(msg string, args ...any)  { l.emit(l.z.Info(), msg, args) }
func (l *ZerologLogger) Warn(msg string, args ...any)  { l.emit(l.z.Warn(), msg, args) }
func (l *ZerologLogger) Error(msg string, args ...any) { l.emit(l.z.Error(), msg, args) }

func (l *ZerologLogger) emit(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	eachField(l.prefix, args, func(key string, v any) {
		if err, ok := v.(error); ok {
			e.AnErr(key, err)
			return
		}
		e.Interface(key, v)
	})
	e.Msg(msg)
}

func (l *ZerologLogger) With(args ...any) Logger {
	ctx := l.z.With()
	eachField(l.prefix, args, func(key string, v any) {
		if err, ok := v.(error); ok {
			ctx = ctx.AnErr(key, err)
			return
		}
		ctx = ctx.Interface(key, v)
	})
	return &ZerologLogger{z: ctx.Logger(), prefix: l.prefix}
}

// WithGroup qualifies later keys as name.key, matching the pretty handler.
func (l *ZerologLogger) WithGroup(name string) Logger {
	if name == "" {
		return l
	}
	return &ZerologLogger{z: l.z, prefix: l.prefix + name + "."}
}

// eachField walks slog-style key/value pairs. slog.Attr values are
// accepted in place of a pair.
func eachField(prefix string, args []any, fn func(key string, v any)) {
	for i := 0; i < len(args); i++ {
		if a, ok := args[i].(slog.Attr); ok {
			fn(prefix+a.Key, a.Value.Any())
			continue
		}
		if i+1 >= len(args) {
			fn(prefix+"!BADKEY", args[i])
			return
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		fn(prefix+key, args[i+1])
		i++
	}
}
