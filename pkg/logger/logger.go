package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hopehouse/reminders/pkg/logger/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	Log     *types.Logger
	logHook atomic.Pointer[types.LogHook]
)

// Config represents configuration options for logger initialization
type Config struct {
	Debug        bool           // Enable debug logging
	TimeLocation *time.Location // Time zone for timestamps (UTC when nil)
	LogToFile    bool           // Also write JSON logs to a file
	LogsDir      string         // Directory for log files (default: current working directory)
	JSON         bool           // Use JSON on stdout instead of the colored console encoder
}

// SetLogHook sets a hook function that will be called for each log entry
func SetLogHook(hook types.LogHook) {
	if hook == nil {
		logHook.Store(nil)
		return
	}
	logHook.Store(&hook)
	if Log != nil {
		Log.Debug("Log hook set")
	}
}

// Init is a function to initialize logger with extended configuration
func Init(config Config) error {
	var l types.Logger
	l.Name = "main"

	if config.LogToFile {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		if config.LogsDir == "" {
			l.LogsPath = wd
		} else {
			l.LogsPath = filepath.Join(wd, config.LogsDir)
		}
		if err = os.MkdirAll(l.LogsPath, os.ModePerm); err != nil {
			return err
		}
	}

	timeLocation := config.TimeLocation
	if timeLocation == nil {
		timeLocation = time.UTC
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:    "message",
		LevelKey:      "level",
		TimeKey:       "timestamp",
		NameKey:       "logger",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.In(timeLocation).Format("2006-01-02 15:04:05"))
		},
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	level := zapcore.InfoLevel
	if config.Debug {
		level = zapcore.DebugLevel
	}

	var consoleEncoder zapcore.Encoder
	if config.JSON {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleEncoderConfig := encoderConfig
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(consoleEncoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	if config.LogToFile {
		mainLogPath := filepath.Join(l.LogsPath, fmt.Sprintf("%s.log", time.Now().In(timeLocation).Format("2006-01-02")))
		fileWriter, errOpenFile := os.OpenFile(mainLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if errOpenFile != nil {
			return errOpenFile
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(fileWriter), level))
	}

	l.SugaredLogger = build(zapcore.NewTee(cores...)).Named(l.Name).Sugar()
	Log = &l

	return nil
}

func build(core zapcore.Core) *zap.Logger {
	return zap.New(core, zap.AddCaller(), zap.Hooks(func(entry zapcore.Entry) error {
		if hook := logHook.Load(); hook != nil {
			(*hook)(types.Log{
				Timestamp:  entry.Time,
				Caller:     entry.Caller.TrimmedPath(),
				LoggerName: entry.LoggerName,
				Level:      entry.Level,
				Message:    entry.Message,
			})
		}
		return nil
	}))
}

// InitObserved installs an in-memory logger and returns its recorded entries. Used in tests.
func InitObserved(level zapcore.Level) *observer.ObservedLogs {
	core, logs := observer.New(level)
	Log = &types.Logger{
		SugaredLogger: build(core).Named("main").Sugar(),
		Name:          "main",
	}
	return logs
}

// Named returns a new logger with the specified name ("dispatch", "http", etc.)
func Named(name string) (*types.Logger, error) {
	if Log == nil {
		return nil, fmt.Errorf("logger is not initialized")
	}
	return &types.Logger{
		SugaredLogger: Log.SugaredLogger.Named(name),
		LogsPath:      Log.LogsPath,
		Name:          name,
	}, nil
}

// Nop returns a logger that discards everything.
func Nop(name string) *types.Logger {
	return &types.Logger{SugaredLogger: zap.NewNop().Sugar(), Name: name}
}

// Sync flushes buffered entries.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
