// Package observability sets up the process logger and the prometheus
// metrics trailblaze exports.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ChamsBouzaiene/trailblaze/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

// Initialize sets the process logger once. console receives human or JSON
// output per cfg.Format; cfg.LogFile, when set, gets rotated JSON.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	once.Do(func() {
		globalLogger.Store(build(cfg, console))
	})
}

// InitializeLogger initializes the process logger writing to console.
// A nil console means stderr, keeping stdout free for command output.
func InitializeLogger(cfg config.LoggerConfig, console io.Writer) {
	if console == nil {
		console = os.Stderr
	}
	Initialize(cfg, zapcore.Lock(zapcore.AddSync(console)))
}

// NewLogger builds a logger from cfg without touching the process logger.
func NewLogger(cfg config.LoggerConfig, console io.Writer) *zap.Logger {
	return build(cfg, zapcore.AddSync(console))
}

func build(cfg config.LoggerConfig, console zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder(cfg.Format), console, level)}
	if cfg.LogFile != "" {
		file := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(encoder("json"), file, level))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}
	l := zap.New(zapcore.NewTee(cores...), opts...)
	if cfg.ServiceName != "" {
		l = l.Named(cfg.ServiceName)
	}
	return l
}

func encoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(name + ".")
		}
		return zapcore.NewConsoleEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

// GetLogger returns the process logger, or a no-op logger before
// initialization.
func GetLogger() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// ResetForTest clears the process logger so Initialize runs again.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

// Sync flushes the process logger, ignoring the errors terminals report
// for stdout and stderr.
func Sync() {
	l := globalLogger.Load()
	if l == nil {
		return
	}
	if err := l.Sync(); err != nil {
		msg := err.Error()
		if !strings.Contains(msg, "/dev/std") &&
			!strings.Contains(msg, "invalid argument") &&
			!strings.Contains(msg, "inappropriate ioctl") {
			fmt.Fprintln(os.Stderr, "failed to sync logger:", err)
		}
	}
}
