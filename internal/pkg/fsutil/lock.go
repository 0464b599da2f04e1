package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"spotguard/internal/logger"
)

// ErrLocked 表示已有其他实例持有数据目录。
var ErrLocked = errors.New("instance lock held by another process")

// 空 pid 文件可能是另一个实例正在写入，超过该时长才视为遗留。
const emptyLockGrace = 10 * time.Second

var (
	heldMu sync.Mutex
	held   = map[string]bool{}

	// processAlive 可在测试中替换。
	processAlive = pidAlive
)

// InstanceLock 基于 O_EXCL 创建的 pid 文件，保证同一数据目录只有一个写入者。
// 持有者进程已退出（崩溃、被 kill）时，下一个实例会接管遗留的锁文件。
type InstanceLock struct {
	path string
	f    *os.File
}

func AcquireLock(path string) (*InstanceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	l, err := createLock(abs)
	if !errors.Is(err, os.ErrExist) {
		return l, err
	}
	holder, stale := staleHolder(abs)
	if !stale {
		return nil, fmt.Errorf("%w: %s (pid %s)", ErrLocked, path, holder)
	}
	logger.Warnf("taking over stale instance lock %s left by pid %s", path, orUnknown(holder))
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	l, err = createLock(abs)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return l, err
}

func createLock(path string) (*InstanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	heldMu.Lock()
	held[path] = true
	heldMu.Unlock()
	return &InstanceLock{path: path, f: f}, nil
}

// staleHolder 读取锁文件中的 pid 并判断持有者是否已不存在。
// 与本进程 pid 相同但不在本进程持有列表中的锁，来自重启前的同 pid 进程（常见于容器 pid 1）。
func staleHolder(path string) (string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Is(err, os.ErrNotExist)
	}
	holder := strings.TrimSpace(string(raw))
	pid, err := strconv.Atoi(holder)
	if err != nil || pid <= 0 {
		info, serr := os.Stat(path)
		return holder, serr == nil && time.Since(info.ModTime()) > emptyLockGrace
	}
	if pid == os.Getpid() {
		heldMu.Lock()
		defer heldMu.Unlock()
		return holder, !held[path]
	}
	return holder, !processAlive(pid)
}

// pidAlive 用 signal 0 探测进程；无权限（EPERM）说明进程存在，无法判断时按存活处理。
func pidAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	switch {
	case err == nil, errors.Is(err, syscall.EPERM):
		return true
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return false
	default:
		return true
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func (l *InstanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = l.f.Close()
	l.f = nil
	heldMu.Lock()
	delete(held, l.path)
	heldMu.Unlock()
	return os.Remove(l.path)
}
