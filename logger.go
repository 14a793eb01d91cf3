package gerbang

import (
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the minimal structured logging surface gerbang emits to.
// Key/value pairs alternate in keysAndValues.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DebugConfig selects which mediation concerns emit debug logs. Logging is
// off unless Enabled is set and a Logger is configured.
type DebugConfig struct {
	Enabled      bool
	LogFetches   bool
	LogCache     bool
	LogRateLimit bool
	LogCircuit   bool
	LogRetries   bool
	LogDedup     bool
	FetchIDGen   func() string
}

// DefaultDebugConfig enables every concern with UUID fetch IDs.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		LogFetches:   true,
		LogCache:     true,
		LogRateLimit: true,
		LogCircuit:   true,
		LogRetries:   true,
		LogDedup:     true,
		FetchIDGen:   defaultFetchID,
	}
}

func defaultFetchID() string {
	return uuid.NewString()
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

// NewDefaultZerologLogger builds a zerolog-backed Logger writing to stderr.
func NewDefaultZerologLogger() *ZerologLogger {
	return &ZerologLogger{
		logger: zerolog.New(os.Stderr).With().Timestamp().Str("component", "gerbang").Logger(),
	}
}

func (z *ZerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.logger.Debug().Fields(fieldsMap(keysAndValues)).Msg(msg)
}

func (z *ZerologLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Info().Fields(fieldsMap(keysAndValues)).Msg(msg)
}

func (z *ZerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.logger.Warn().Fields(fieldsMap(keysAndValues)).Msg(msg)
}

func (z *ZerologLogger) Error(msg string, keysAndValues ...interface{}) {
	z.logger.Error().Fields(fieldsMap(keysAndValues)).Msg(msg)
}

// fieldsMap folds alternating key/value pairs into a map. A trailing key
// without a value is kept with a nil value rather than dropped.
func fieldsMap(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if i+1 < len(keysAndValues) {
			fields[key] = keysAndValues[i+1]
		} else {
			fields[key] = nil
		}
	}
	return fields
}

// SimpleLogger is a stdlib-log based Logger for quick debugging.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a SimpleLogger writing to stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stderr, "gerbang ", log.LstdFlags|log.Lmicroseconds),
	}
}

func (s *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	s.print("DEBUG", msg, keysAndValues)
}

func (s *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	s.print("INFO", msg, keysAndValues)
}

func (s *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	s.print("WARN", msg, keysAndValues)
}

func (s *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	s.print("ERROR", msg, keysAndValues)
}

func (s *SimpleLogger) print(level, msg string, keysAndValues []interface{}) {
	if len(keysAndValues) == 0 {
		s.logger.Printf("%s %s", level, msg)
		return
	}
	s.logger.Printf("%s %s %v", level, msg, keysAndValues)
}
