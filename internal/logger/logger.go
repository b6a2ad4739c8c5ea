package logger

import (
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string
	Development bool
}

type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel

	mu    sync.RWMutex
	hooks []func(entry map[string]any)
}

func New(level string) *Logger {
	return NewWithConfig(Config{Level: level}, os.Stdout)
}

// NewWithConfig builds a logger writing to out. Development mode switches to
// the human-readable console encoder.
func NewWithConfig(cfg Config, out io.Writer) *Logger {
	atom := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		CallerKey:      zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	var enc zapcore.Encoder
	if cfg.Development {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(out), atom)
	return &Logger{zl: zap.New(core), level: atom}
}

// Nop discards everything. Useful as a default when no logger is supplied.
func Nop() *Logger {
	atom := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return &Logger{zl: zap.NewNop(), level: atom}
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	l.log(zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	l.log(zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(msg string, fields map[string]any) {
	l.log(zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(msg string, fields map[string]any) {
	l.log(zapcore.ErrorLevel, msg, fields)
}

func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

func (l *Logger) Level() string {
	return l.level.Level().String()
}

// AddHook registers fn to receive every entry that passes the level filter.
func (l *Logger) AddHook(fn func(entry map[string]any)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.hooks = append(l.hooks, fn)
	l.mu.Unlock()
}

func (l *Logger) Sync() error {
	return l.zl.Sync()
}

func (l *Logger) log(level zapcore.Level, msg string, fields map[string]any) {
	if !l.level.Enabled(level) {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	zf := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		zf = append(zf, zap.Any(k, fields[k]))
	}
	if ce := l.zl.Check(level, msg); ce != nil {
		ce.Write(zf...)
	}

	l.mu.RLock()
	hooks := l.hooks
	l.mu.RUnlock()
	if len(hooks) == 0 {
		return
	}
	entry := map[string]any{
		"ts":    time.Now().Format(time.RFC3339),
		"level": level.String(),
		"msg":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	for _, h := range hooks {
		h(entry)
	}
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
