package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"log/slog"
)

// LevelCritical 高于 ERROR，用于必须人工介入的事件（回撤熔断、订单结果未知）。
const LevelCritical = slog.Level(12)

var (
	levelVar slog.LevelVar
	current  atomic.Pointer[slog.Logger]
)

func init() {
	levelVar.Set(slog.LevelInfo)
	current.Store(build(os.Stdout))
}

func build(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       &levelVar,
		ReplaceAttr: renameCritical,
	}))
}

func renameCritical(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}

// SetOutput 替换日志输出，已设置的级别保持不变。
func SetOutput(w io.Writer) {
	current.Store(build(w))
}

// SetLevel 接受 debug/info/warn(ing)/error/critical，无法识别时回落到 info。
func SetLevel(level string) {
	levelVar.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "warning":
		return slog.LevelWarn
	case "critical":
		return LevelCritical
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func logf(lvl slog.Level, format string, v ...any) string {
	l := current.Load()
	if !l.Enabled(context.Background(), lvl) && lvl < LevelCritical {
		return ""
	}
	msg := fmt.Sprintf(format, v...)
	l.Log(context.Background(), lvl, msg)
	return msg
}

func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }

func Infof(format string, v ...any) { logf(slog.LevelInfo, format, v...) }

func Warnf(format string, v ...any) { logf(slog.LevelWarn, format, v...) }

func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }

// Criticalf 同时写入审计日志。
func Criticalf(format string, v ...any) {
	Audit("critical", logf(LevelCritical, format, v...))
}

// InfoBlock 逐行输出多行文本（回测报告等）。
func InfoBlock(block string) {
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		if line != "" {
			Infof("%s", line)
		}
	}
}
