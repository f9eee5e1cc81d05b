package utils

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	loggerMu sync.RWMutex
	logger   = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// InitLogger configures the global logger. When file is non-empty, output is
// rotated via lumberjack and mirrored to stderr.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	var w io.Writer = os.Stderr
	if file != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   compress,
		})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	loggerMu.Lock()
	logger = zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	loggerMu.Unlock()
}

// SetLogLevel adjusts the level of the current logger. Unknown levels fall
// back to info.
func SetLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	loggerMu.Lock()
	logger = logger.Level(lvl)
	loggerMu.Unlock()
}

// SetLoggerForTest replaces the global logger. Tests use this to capture
// output in a buffer.
func SetLoggerForTest(l zerolog.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

func getLogger() zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Debug logs a debug message with alternating key/value pairs.
func Debug(msg string, kv ...interface{}) {
	l := getLogger()
	l.Debug().Fields(kv).Msg(msg)
}

// Info logs an info message with alternating key/value pairs.
func Info(msg string, kv ...interface{}) {
	l := getLogger()
	l.Info().Fields(kv).Msg(msg)
}

// Warn logs a warning with alternating key/value pairs.
func Warn(msg string, kv ...interface{}) {
	l := getLogger()
	l.Warn().Fields(kv).Msg(msg)
}

// Error logs an error with alternating key/value pairs.
func Error(msg string, kv ...interface{}) {
	l := getLogger()
	l.Error().Fields(kv).Msg(msg)
}
