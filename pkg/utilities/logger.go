package utilities

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level string
	Dev   bool
}

// ConfigFromEnv reads minimal config from env vars.
func ConfigFromEnv() Config {
	dev := os.Getenv("LOG_DEV") == "1"
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		if dev {
			lvl = "debug"
		} else {
			lvl = "info"
		}
	}
	return Config{Level: lvl, Dev: dev}
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(core, opts...), nil
}

// FileSinkConfig describes a rotated log file used as a dedicated error sink.
type FileSinkConfig struct {
	// Pattern is a strftime pattern, e.g. ./logs/attendance.%Y%m%d.log
	Pattern      string
	MaxAge       time.Duration
	RotationTime time.Duration
}

// FileSinkConfigFromEnv reads the sink pattern from the given env var, falling back to def.
func FileSinkConfigFromEnv(key, def string) FileSinkConfig {
	pattern := os.Getenv(key)
	if pattern == "" {
		pattern = def
	}
	return FileSinkConfig{Pattern: pattern, MaxAge: 30 * 24 * time.Hour, RotationTime: 24 * time.Hour}
}

// NewFileSink builds a JSON logger writing to a daily-rotated file. The returned
// close func releases the underlying file handle.
func NewFileSink(cfg FileSinkConfig) (*zap.Logger, func() error, error) {
	if dir := filepath.Dir(cfg.Pattern); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	rl, err := rotatelogs.New(cfg.Pattern,
		rotatelogs.WithMaxAge(cfg.MaxAge),
		rotatelogs.WithRotationTime(cfg.RotationTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open rotated log: %w", err)
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rl), zapcore.InfoLevel)
	return zap.New(core, zap.AddCaller()), rl.Close, nil
}
