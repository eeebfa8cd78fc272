package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// 进度行最小刷新间隔。
const progressEvery = 100 * time.Millisecond

// Terminal 向用户打印运行进度（与结构化日志分离）。
// TTY 下进度行以 \r 原地覆盖；非 TTY（含 CI）只在文件与运行边界各打印一行。
// 任一次写失败后转为 no-op；nil 接收者安全。
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	isTTY   bool

	concurrency int
	runStart    time.Time
	files       int
	reqs        int
	degraded    int

	file      string
	inline    int // 当前 \r 行的可见宽度
	lastFlush time.Time
}

func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			if st, err := f.Stat(); err == nil && st.Mode()&os.ModeCharDevice != 0 {
				t.isTTY = true
			}
		}
	}
	return t
}

// with 在锁内执行 fn；未启用时跳过。
func (t *Terminal) with(fn func()) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		fn()
	}
}

func (t *Terminal) RunStart(concurrency int, oracle string) {
	t.with(func() {
		t.concurrency = concurrency
		t.runStart = time.Now()
		t.files, t.reqs, t.degraded = 0, 0, 0
		t.line(fmt.Sprintf("[run] 并发=%d | oracle=%s", concurrency, safe(oracle)))
	})
}

func (t *Terminal) FileStart(fileID string, pages int) {
	t.with(func() {
		t.file = shortenBase(fileID, 48)
		if !t.isTTY {
			t.line(fmt.Sprintf("[file] %s | 页数=%d", t.file, pages))
		}
	})
}

// FileProgress 只在 TTY 下输出；stage 为 extract|assess，errs 为已降级数。
func (t *Terminal) FileProgress(stage string, done, total, errs int) {
	t.with(func() {
		if !t.isTTY {
			return
		}
		now := time.Now()
		if now.Sub(t.lastFlush) < progressEvery {
			return
		}
		t.lastFlush = now
		t.overwrite(fmt.Sprintf("[file] %s | %s %d/%d | 降级 %d | 并发 %d | 用时 %s",
			t.file, stage, done, total, errs, t.concurrency, formatDur(time.Since(t.runStart))))
	})
}

// FileFinish 结束当前文件；degraded 为携带哨兵值的记录数。
func (t *Terminal) FileFinish(ok bool, reqs, degraded int, dur time.Duration) {
	t.with(func() {
		t.files++
		t.reqs += reqs
		t.degraded += degraded
		if t.inline > 0 {
			t.overwrite("")
		}
		t.line(fmt.Sprintf("[%s] %s | 需求 %d%s | 总用时 %s",
			tag(ok, "done"), t.file, reqs, degradedPart(degraded), formatDur(dur)))
	})
}

func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	t.with(func() {
		t.line(fmt.Sprintf("[%s] 全部完成 | 文件 %d | 需求 %d%s | 总用时 %s",
			tag(ok, "ok"), t.files, t.reqs, degradedPart(t.degraded), formatDur(dur)))
	})
}

func tag(ok bool, success string) string {
	if ok {
		return success
	}
	return "fail"
}

func degradedPart(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(" | 降级 %d", n)
}

func (t *Terminal) line(s string) {
	t.inline = 0
	t.emit(s + "\n")
}

// overwrite 以 \r 覆盖当前行，较短时补空格擦除残留。
func (t *Terminal) overwrite(s string) {
	w := utf8.RuneCountInString(s)
	pad := ""
	if t.inline > w {
		pad = strings.Repeat(" ", t.inline-w)
	}
	if t.emit("\r" + s + pad) {
		t.inline = w
	}
}

func (t *Terminal) emit(s string) bool {
	if _, err := io.WriteString(t.w, s); err != nil {
		t.enabled = false
		return false
	}
	return true
}

// shortenBase 取基名，超过 limit 个字符时截断并追加省略号。
func shortenBase(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(filepath.Base(strings.TrimSpace(s)))
	if len(rs) <= limit {
		return string(rs)
	}
	return string(rs[:max(1, limit-1)]) + "…"
}

func safe(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", max(d.Milliseconds(), 0))
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000)
}
