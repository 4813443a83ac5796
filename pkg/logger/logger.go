// Package logger は構造化ログ（JSON）を出力するslog.Loggerを生成する。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New はサービス名を付与したJSON形式のslog.Loggerを標準出力向けに生成する。
func New(service string, level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stdout, service, level)
}

// NewWithWriter は出力先を指定してslog.Loggerを生成する。
func NewWithWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}

// ParseLevel はdebug/info/warn/errorの文字列をslog.Levelに変換する。
// 空文字列はinfoとして扱う。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("不明なログレベル: %q", s)
	}
}
