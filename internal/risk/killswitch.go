package risk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"spotguard/internal/logger"
	"spotguard/internal/pkg/fsutil"

	"github.com/fsnotify/fsnotify"
)

// KillSwitch 是人工急停开关，每次调用都重新读取。
type KillSwitch interface {
	Active() bool
}

type NeverSwitch struct{}

func (NeverSwitch) Active() bool { return false }

// EnvSwitch 读取环境变量，值为 true（不区分大小写）时生效。
type EnvSwitch struct {
	Name   string
	lookup func(string) (string, bool)
}

func NewEnvSwitch(name string) EnvSwitch {
	return EnvSwitch{Name: name, lookup: os.LookupEnv}
}

func (e EnvSwitch) Active() bool {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(e.Name)
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// FileSwitch 以标志文件作为开关：文件存在且内容不是 false/0 即生效。
// Active 每次都重新读取文件；fsnotify 只用于在 tick 之间及时发出 OnChange 通知。
type FileSwitch struct {
	path    string
	active  atomic.Bool
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	onFlip  func(bool)
}

func NewFileSwitch(path string) (*FileSwitch, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("kill switch file path is empty")
	}
	fs := &FileSwitch{path: filepath.Clean(path), done: make(chan struct{})}
	fs.active.Store(readFlag(fs.path))
	return fs, nil
}

// OnChange 注册状态翻转回调，需在 Watch 之前调用。
func (f *FileSwitch) OnChange(fn func(active bool)) {
	f.mu.Lock()
	f.onFlip = fn
	f.mu.Unlock()
}

// Watch 启动目录监听；监听失败只影响 OnChange 的及时性。
func (f *FileSwitch) Watch() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create kill switch dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create kill switch watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch kill switch dir: %w", err)
	}
	f.mu.Lock()
	f.watcher = w
	f.mu.Unlock()
	go f.loop(w)
	return nil
}

func (f *FileSwitch) loop(w *fsnotify.Watcher) {
	for {
		select {
		case <-f.done:
			return
		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != f.path {
				continue
			}
			f.refresh()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warnf("kill switch watcher error: %v", err)
		}
	}
}

func (f *FileSwitch) refresh() bool {
	next := readFlag(f.path)
	prev := f.active.Swap(next)
	if prev == next {
		return next
	}
	logger.Warnf("kill switch file %s changed: active=%v", f.path, next)
	f.mu.Lock()
	fn := f.onFlip
	f.mu.Unlock()
	if fn != nil {
		fn(next)
	}
	return next
}

// Active 读取文件当前状态；与缓存不一致（漏掉的事件）时同样触发 OnChange。
func (f *FileSwitch) Active() bool {
	return f.refresh()
}

// Set 写入或删除标志文件，HTTP 管理接口使用。
func (f *FileSwitch) Set(active bool) error {
	if active {
		if err := fsutil.WriteFileAtomic(f.path, []byte("true\n"), 0o600); err != nil {
			return err
		}
	} else if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove kill switch file: %w", err)
	}
	logger.Audit("kill_switch", "kill switch file updated", "active", active)
	f.refresh()
	return nil
}

func (f *FileSwitch) Path() string { return f.path }

func (f *FileSwitch) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher == nil {
		return nil
	}
	close(f.done)
	err := f.watcher.Close()
	f.watcher = nil
	return err
}

// readFlag 文件不存在为关闭；其他读取错误（权限、路径是目录等）按生效处理。
func readFlag(path string) bool {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err != nil {
		logger.Warnf("kill switch file %s unreadable, treating as active: %v", path, err)
		return true
	}
	v := strings.ToLower(strings.TrimSpace(string(raw)))
	return v != "false" && v != "0"
}

// AnySwitch 任一成员生效即生效。
type AnySwitch []KillSwitch

func (a AnySwitch) Active() bool {
	for _, s := range a {
		if s != nil && s.Active() {
			return true
		}
	}
	return false
}
