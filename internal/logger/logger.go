package logger

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wfunc/emojirades/internal/config"
)

// Logger wraps a root zap.Logger with per-module level overrides.
// Instances are passed explicitly to each workspace and component.
type Logger struct {
	*zap.Logger

	level   zap.AtomicLevel
	encoder zapcore.Encoder
	sink    zapcore.WriteSyncer

	mu      sync.RWMutex
	modules map[string]*zap.Logger
	levels  map[string]string
}

// New builds a Logger from the log section of the configuration.
func New(cfg *config.LogConfig) (*Logger, error) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var (
		cores []zapcore.Core
		sinks []zapcore.WriteSyncer
	)

	if cfg.Output == "stdout" || cfg.Output == "both" || cfg.Output == "" {
		sinks = append(sinks, zapcore.AddSync(os.Stdout))
	}

	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0o755); err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.File.Path, cfg.File.Filename),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}))

		errorWriter := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.File.Path, "error.log"),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(errorWriter), zapcore.ErrorLevel))
	}

	sink := zapcore.NewMultiWriteSyncer(sinks...)
	cores = append(cores, zapcore.NewCore(encoder, sink, level))

	root := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	return &Logger{
		Logger:  root,
		level:   level,
		encoder: encoder,
		sink:    sink,
		modules: make(map[string]*zap.Logger),
		levels:  copyLevels(cfg.Modules),
	}, nil
}

// NewNop returns a Logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{
		Logger:  zap.NewNop(),
		level:   zap.NewAtomicLevel(),
		modules: make(map[string]*zap.Logger),
		levels:  map[string]string{},
	}
}

func copyLevels(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Module returns a named logger. When log.modules carries an override for
// the module, its level applies instead of the root level.
func (l *Logger) Module(module string) *zap.Logger {
	l.mu.RLock()
	if m, ok := l.modules[module]; ok {
		l.mu.RUnlock()
		return m
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.modules[module]; ok {
		return m
	}

	m := l.Logger.Named(module)
	if lvl, ok := l.levels[module]; ok && l.encoder != nil {
		m = zap.New(
			zapcore.NewCore(l.encoder, l.sink, parseLevel(lvl)),
			zap.AddCaller(),
		).Named(module)
	}
	l.modules[module] = m
	return m
}

// SetLevel changes the root level at runtime.
func (l *Logger) SetLevel(levelStr string) {
	l.level.SetLevel(parseLevel(levelStr))
}

// Level returns the current root level.
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// LogRequest records an HTTP request.
func (l *Logger) LogRequest(method, path string, statusCode int, latency time.Duration, clientIP string) {
	l.Module("http").Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
	)
}

// LogPanic records a recovered panic.
func (l *Logger) LogPanic(recovered interface{}, stack []byte) {
	l.Error("panic recovered",
		zap.Any("panic", recovered),
		zap.ByteString("stack", stack),
	)
}
