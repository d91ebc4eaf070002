package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log   *zap.Logger
	Sugar *zap.SugaredLogger

	// logFile is the file opened by the last Setup, closed when Setup runs again.
	logFile *os.File
)

// Options controls where log lines go. An empty File keeps output on stderr only.
type Options struct {
	Level string
	File  string
}

func init() {
	// Stderr only until Setup is called, so importing the package never touches the filesystem.
	core := zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stderr), levelFromEnv(zapcore.InfoLevel))
	Log = zap.New(core, zap.AddCaller())
	Sugar = Log.Sugar()
}

// Setup rebuilds the global logger. Level falls back to VOLSTREAM_LOG_LEVEL, then LOG_LEVEL.
func Setup(opts Options) error {
	level := levelFromEnv(zapcore.InfoLevel)
	if s := strings.TrimSpace(opts.Level); s != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var file *os.File
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		var err error
		file, err = os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.AddSync(file), level))
	}

	// AddCaller ensures the log includes filename and line number
	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	Sugar = Log.Sugar()

	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Log.Sync()
}

func newEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006/01/02 15:04:05"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return zapcore.NewConsoleEncoder(encoderConfig)
}

func levelFromEnv(fallback zapcore.Level) zapcore.Level {
	level := fallback
	levelStr := strings.TrimSpace(os.Getenv("VOLSTREAM_LOG_LEVEL"))
	if levelStr == "" {
		levelStr = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	if levelStr != "" {
		_ = level.UnmarshalText([]byte(strings.ToLower(levelStr)))
	}
	return level
}
