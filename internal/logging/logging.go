package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once
	levelMu      sync.RWMutex
)

// ParseLevel converts a LOG_LEVEL value into a LogLevel. Unknown values map
// to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel = LevelDebug
				return
			}
		}
		currentLevel = ParseLevel(os.Getenv("LOG_LEVEL"))
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// SetLevel overrides the level picked up from the environment. The CLI uses
// it for its --verbose flag.
func SetLevel(l LogLevel) {
	initLevel()
	levelMu.Lock()
	currentLevel = l
	levelMu.Unlock()
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

var levelTags = [...]string{
	LevelDebug: "[DEBUG] ",
	LevelInfo:  "[INFO] ",
	LevelWarn:  "[WARN] ",
	LevelError: "[ERROR] ",
}

func logf(l LogLevel, format string, args ...interface{}) {
	if GetLevel() > l {
		return
	}
	log.Printf(levelTags[l]+format, args...)
}

// Debug logs only when DEBUG=true or LOG_LEVEL=debug.
func Debug(format string, args ...interface{}) { logf(LevelDebug, format, args...) }

// Info logs routine progress.
func Info(format string, args ...interface{}) { logf(LevelInfo, format, args...) }

// Warn logs recoverable problems.
func Warn(format string, args ...interface{}) { logf(LevelWarn, format, args...) }

// Error logs failures.
func Error(format string, args ...interface{}) { logf(LevelError, format, args...) }

// Fatal logs regardless of level and exits with status 1.
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// JobLogger prefixes every message with a job id and artifact kind.
type JobLogger struct {
	prefix string
}

// ForJob returns a logger whose lines read "[job <id> <kind>] ...".
func ForJob(id, kind string) JobLogger {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return JobLogger{prefix: fmt.Sprintf("[job %s %s] ", short, kind)}
}

// Prefix returns the string prepended to each message.
func (l JobLogger) Prefix() string {
	return l.prefix
}

func (l JobLogger) Debug(format string, args ...interface{}) { Debug(l.prefix+format, args...) }
func (l JobLogger) Info(format string, args ...interface{})  { Info(l.prefix+format, args...) }
func (l JobLogger) Warn(format string, args ...interface{})  { Warn(l.prefix+format, args...) }
func (l JobLogger) Error(format string, args ...interface{}) { Error(l.prefix+format, args...) }

var levelNames = [...]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l LogLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("unknown(%d)", int(l))
}
