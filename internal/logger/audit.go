package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// 审计日志：只记录下单、熔断、人工重置等需要事后追溯的事件，独立于运行日志。
var (
	auditMu  sync.Mutex
	auditLog *log.Logger
)

func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags|log.LUTC)
}

// Audit 以 "[AUDIT][kind] k=v ..." 形式写一行，fields 为 key/value 交替。
func Audit(kind, msg string, fields ...any) {
	auditMu.Lock()
	l := auditLog
	auditMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[AUDIT]")
	if kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	if msg = strings.TrimSpace(msg); msg != "" {
		b.WriteString(" ")
		b.WriteString(msg)
	}
	for _, kv := range pairs(fields) {
		b.WriteString(" ")
		b.WriteString(kv)
	}
	l.Print(b.String())
}

func pairs(fields []any) []string {
	out := make([]string, 0, len(fields)/2+1)
	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if i+1 >= len(fields) {
			out = append(out, key+"=?")
			break
		}
		out = append(out, fmt.Sprintf("%s=%v", key, fields[i+1]))
	}
	return out
}
