// Package logging provides the bracket-tagged leveled logger used across
// the master and agent processes, in the same style cmd/server's startup
// and shutdown lines use.
package logging

import (
	"log"
	"os"
	"strings"
)

// Level is a logging verbosity threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func parseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger wraps the standard library logger with a level gate and the
// bracket-tag convention ("[INIT]", "[SHUTDOWN]", "[CONTROLLER]", ...).
type Logger struct {
	level Level
	out   *log.Logger
}

// New builds a Logger reading its threshold from LOG_LEVEL (DEBUG, INFO,
// WARN, ERROR; default INFO), matching the original's
// logging.basicConfig(level=os.getenv('LOG_LEVEL', 'INFO')).
func New() *Logger {
	return &Logger{
		level: parseLevel(os.Getenv("LOG_LEVEL")),
		out:   log.New(os.Stdout, "", log.LstdFlags),
	}
}

func (l *Logger) Debugf(tag, format string, args ...interface{}) {
	if l.level <= LevelDebug {
		l.out.Printf("[%s] "+format, append([]interface{}{tag}, args...)...)
	}
}

func (l *Logger) Infof(tag, format string, args ...interface{}) {
	if l.level <= LevelInfo {
		l.out.Printf("[%s] "+format, append([]interface{}{tag}, args...)...)
	}
}

func (l *Logger) Warnf(tag, format string, args ...interface{}) {
	if l.level <= LevelWarn {
		l.out.Printf("[%s] WARN "+format, append([]interface{}{tag}, args...)...)
	}
}

func (l *Logger) Errorf(tag, format string, args ...interface{}) {
	if l.level <= LevelError {
		l.out.Printf("[%s] ERROR "+format, append([]interface{}{tag}, args...)...)
	}
}
