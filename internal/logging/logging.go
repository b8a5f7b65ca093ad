package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/park285/clarification-agent-go/internal/config"
)

const defaultLogFileName = "clarification-agent.log"

// NewLogger: tint 핸들러 로거를 생성하고 기본 로거로 등록합니다.
// LogDir 이 있으면 lumberjack 으로 파일에도 같이 씁니다. withOTel 이면 trace_id/span_id 를 붙입니다.
func NewLogger(cfg config.LoggingConfig, withOTel bool) (*slog.Logger, error) {
	level := ParseLevel(cfg.Level)
	logDir := strings.TrimSpace(cfg.LogDir)
	if logDir == "" {
		logger := slog.New(newHandler(os.Stderr, level, false, withOTel))
		slog.SetDefault(logger)
		return logger, nil
	}

	if cfg.MaxSizeMB <= 0 || cfg.MaxBackups <= 0 || cfg.MaxAgeDays <= 0 {
		return nil, fmt.Errorf(
			"invalid log config: size=%d backups=%d age_days=%d",
			cfg.MaxSizeMB,
			cfg.MaxBackups,
			cfg.MaxAgeDays,
		)
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir failed: %w", err)
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, defaultLogFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	logger := slog.New(newHandler(io.MultiWriter(os.Stderr, logFile), level, true, withOTel))
	slog.SetDefault(logger)
	logger.Info("file_logging_enabled", "path", logFile.Filename)
	return logger, nil
}

// NewCLILogger: CLI 용 로거입니다. 결과 JSON 과 섞이지 않도록 stderr 에만 씁니다.
func NewCLILogger(level string) *slog.Logger {
	return slog.New(newHandler(os.Stderr, ParseLevel(level), false, false))
}

func newHandler(writer io.Writer, level slog.Level, noColor bool, withOTel bool) slog.Handler {
	var handler slog.Handler = tint.NewHandler(writer, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  level == slog.LevelDebug,
		NoColor:    noColor,
	})
	if withOTel {
		handler = newOTelHandler(handler)
	}
	return handler
}

// ParseLevel: 알 수 없는 값은 info 입니다.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
