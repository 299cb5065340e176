package types

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a named zap logger
type Logger struct {
	*zap.SugaredLogger
	LogsPath string
	Name     string
}

// Log is a single entry handed to a LogHook
type Log struct {
	Timestamp  time.Time
	Caller     string
	LoggerName string
	Level      zapcore.Level
	Message    string
}

// LogHook is called for each log entry
type LogHook func(log Log)
