package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewDefault 创建输出到 stdout 的默认日志记录器。
//
// 参数:
//
//	level: 日志级别字符串（debug / info / warn / error），无法识别时使用 info
//
// 返回值:
//
//	*slog.Logger: JSON 格式的结构化日志记录器
func NewDefault(level string) *slog.Logger {
	return New(os.Stdout, level, "json")
}

// NewForEnv 本地环境输出文本日志，其他环境输出 JSON。
func NewForEnv(env, level string) *slog.Logger {
	if strings.EqualFold(env, "local") {
		return New(os.Stdout, level, "text")
	}
	return NewDefault(level)
}

// New 根据输出、级别与格式创建日志记录器。format 为 "text" 时使用文本格式。
func New(w io.Writer, level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel 将字符串转换为 slog.Level。
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

// Discard 返回丢弃所有输出的日志记录器，测试中使用。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
