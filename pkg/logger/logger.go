// Package logger is a thin key/value facade over zerolog.
//
// Call sites pass a message followed by alternating keys and values:
//
//	logger.Info("Socket bound", "address", addr)
//	logger.Error("Receive failed", err, "socket", id)
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const EnvProduction = "production"

var (
	mu  sync.RWMutex
	log = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
}

// Init configures the global logger. Production environments log JSON,
// everything else gets the human-readable console writer.
func Init(environment string, debug bool) {
	InitWithWriter(environment, debug, os.Stderr)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(environment string, debug bool, out io.Writer) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	w := out
	if environment != EnvProduction {
		w = consoleWriter(out)
	}

	mu.Lock()
	log = zerolog.New(w).With().Timestamp().Logger().Level(level)
	mu.Unlock()
}

// SetLevel parses a textual level ("debug", "info", ...) and applies it.
func SetLevel(name string) error {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	mu.Lock()
	log = log.Level(level)
	mu.Unlock()
	return nil
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(msg string, keyValues ...interface{}) {
	l := current()
	withFields(l.Debug(), keyValues).Msg(msg)
}

func Info(msg string, keyValues ...interface{}) {
	l := current()
	withFields(l.Info(), keyValues).Msg(msg)
}

func Warn(msg string, keyValues ...interface{}) {
	l := current()
	withFields(l.Warn(), keyValues).Msg(msg)
}

func Error(msg string, err error, keyValues ...interface{}) {
	l := current()
	withFields(l.Error().Err(err), keyValues).Msg(msg)
}

// Fatal logs and exits the process with status 1.
func Fatal(msg string, err error, keyValues ...interface{}) {
	l := current()
	withFields(l.Fatal().Err(err), keyValues).Msg(msg)
}

func withFields(e *zerolog.Event, keyValues []interface{}) *zerolog.Event {
	for i := 0; i < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			key = fmt.Sprint(keyValues[i])
		}
		if i+1 >= len(keyValues) {
			e = e.Interface(key, "MISSING")
			break
		}
		e = e.Interface(key, keyValues[i+1])
	}
	return e
}
