package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	logPrefix  = "rfpreq-"
	logCurrent = logPrefix + "current.txt"
	// 保留的历史轮转文件数，超出时删除最旧的。
	maxBackups = 8
)

// RotatingFile 是按大小轮转的日志 sink（zapcore.WriteSyncer）。
// 当前文件为 rfpreq-current.txt；超过 maxBytes 时改名为 rfpreq-<UTC 时间戳>.txt。
type RotatingFile struct {
	dir      string
	maxBytes int64

	mu   sync.Mutex
	f    *os.File
	size int64
}

func NewRotatingFile(dir string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes}
}

// Write 写入一条已编码的日志行；单行不拆分到两个文件。
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *RotatingFile) open() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, logCurrent), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f, w.size = f, 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	return nil
}

// rotate 在持有 mu 时调用：关闭、改名、清理、重开。
func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.open()
	}
	_ = w.f.Close()
	w.f = nil
	// 纳秒精度避免同秒多次轮转互相覆盖
	stamp := time.Now().UTC().Format("20060102-150405.000000000")
	cur := filepath.Join(w.dir, logCurrent)
	if err := os.Rename(cur, filepath.Join(w.dir, logPrefix+stamp+".txt")); err != nil {
		return fmt.Errorf("rotate log: %w", err)
	}
	w.prune()
	return w.open()
}

// prune 删除超出 maxBackups 的旧轮转文件；失败忽略。
func (w *RotatingFile) prune() {
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	var old []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || name == logCurrent || !strings.HasPrefix(name, logPrefix) || !strings.HasSuffix(name, ".txt") {
			continue
		}
		old = append(old, name)
	}
	if len(old) <= maxBackups {
		return
	}
	// 时间戳字典序即时间序
	sort.Strings(old)
	for _, name := range old[:len(old)-maxBackups] {
		_ = os.Remove(filepath.Join(w.dir, name))
	}
}
