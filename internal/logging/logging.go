package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mart337i/Tempo/internal/config"
)

// New builds the process logger from the [logging] section. Output always
// goes to stderr; a file sink is added when settings.File is set. Unknown
// levels fall back to info.
func New(settings config.LogSettings) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(settings.Level)))); err != nil {
		level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	switch strings.ToLower(strings.TrimSpace(settings.Format)) {
	case "json":
		cfg.Encoding = "json"
	default:
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.DisableStacktrace = level > zapcore.DebugLevel

	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if file := strings.TrimSpace(settings.File); file != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, file)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("tempo"), nil
}
