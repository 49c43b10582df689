// Package logging provides structured logging with consistent component
// tagging across the keeper, matching the shape of the teacher's
// explorer/indexer pkg/logger.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with a fixed component field.
type Logger struct {
	base zerolog.Logger
}

// New creates a logger tagged with the given component name.
func New(component string) *Logger {
	l := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("component", component).
		Logger().
		Level(zerolog.InfoLevel)
	return &Logger{base: l}
}

// With returns a child logger with an additional field attached.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{base: l.base.With().Interface(key, value).Logger()}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.base.Debug().Fields(kvToMap(keyvals...)).Msg(msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.base.Info().Fields(kvToMap(keyvals...)).Msg(msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.base.Warn().Fields(kvToMap(keyvals...)).Msg(msg)
}

// Error logs at error level, attaching the error under the "error" key.
func (l *Logger) Error(err error, msg string, keyvals ...interface{}) {
	fields := kvToMap(keyvals...)
	if err != nil {
		fields["error"] = err.Error()
	}
	l.base.Error().Fields(fields).Msg(msg)
}

func kvToMap(kv ...interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}
