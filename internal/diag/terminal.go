package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Terminal 为终端状态提示（非日志），建议输出到 stderr。
// TTY 下单行 \r 覆盖并着色；非 TTY 仅在关键节点分行打印。
// 并发安全；写失败后进入禁用态。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	engine    string
	filesDone int
	records   int64
	runStart  time.Time

	curFileID  string
	curRecords int64

	lastLen   int
	lastFlush time.Time

	okTag, failTag, fileTag *color.Color

	mu sync.Mutex
}

// NewTerminal 构造终端提示器；enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{
		w:       w,
		enabled: enabled,
		okTag:   color.New(color.FgGreen, color.Bold),
		failTag: color.New(color.FgRed, color.Bold),
		fileTag: color.New(color.FgCyan),
	}
	// CI 环境视为非 TTY
	if f, ok := w.(*os.File); ok && os.Getenv("CI") == "" {
		t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	// stdout 常被重定向，颜色开关按本 Writer 是否为 TTY 决定
	for _, c := range []*color.Color{t.okTag, t.failTag, t.fileTag} {
		if t.isTTY {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// RunStart 记录运行上下文。
func (t *Terminal) RunStart(engine string, inputs int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.engine = engine
	t.filesDone = 0
	t.records = 0
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] engine=%s | inputs=%d", safe(engine), inputs))
}

// FileStart 标记当前输入。
func (t *Terminal) FileStart(fileID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.curFileID = shortenBase(fileID, 48)
	t.curRecords = 0
	if !t.isTTY {
		t.println(t.fileTag.Sprint("[file]") + " " + t.curFileID)
	}
}

// FileProgress 记录当前输入已处理的记录数；TTY 下 100ms 节流刷新。
func (t *Terminal) FileProgress(records int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.curRecords = records
	if !t.isTTY {
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("%s %s | records %d | %s",
		t.fileTag.Sprint("[file]"), t.curFileID, t.curRecords, formatSince(t.runStart)))
}

// FileFinish 完成当前输入并换行。
func (t *Terminal) FileFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.filesDone++
	t.records += t.curRecords
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	t.println(fmt.Sprintf("%s %s | records %d | %s", t.tag(ok, "done"), t.curFileID, t.curRecords, formatDur(dur)))
}

// RunFinish 输出总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.println(fmt.Sprintf("%s files %d | records %d | %s", t.tag(ok, "ok"), t.filesDone, t.records, formatDur(dur)))
}

func (t *Terminal) tag(ok bool, okWord string) string {
	if ok {
		return t.okTag.Sprintf("[%s]", okWord)
	}
	return t.failTag.Sprint("[fail]")
}

func (t *Terminal) println(s string) {
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

// printInline 以 \r 覆盖当前行，新内容较短时以空格清尾。
func (t *Terminal) printInline(s string) {
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if l := visLen(s); t.lastLen > l {
		b.WriteString(strings.Repeat(" ", t.lastLen-l))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase 取基名并按 rune 截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	rs := []rune(base)
	if len(rs) <= max {
		return base
	}
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	return string(rs[:cut]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
