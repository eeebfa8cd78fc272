package diag

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Logger 为结构化事件日志器：单行 JSON，底层为 zap。
// 事件字段固定：corr_id/comp/stage/code/dur_ms/count/file_id/item/kv。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 以 level 初始化；dir 为日志目录（10 MiB 轮转），"-" 表示写 stderr。
func NewLogger(corrID, level, dir string) *Logger {
	var ws zapcore.WriteSyncer
	var sink *RotatingFile
	if strings.TrimSpace(dir) == "-" {
		ws = zapcore.Lock(os.Stderr)
	} else {
		if strings.TrimSpace(dir) == "" {
			dir = "logs"
		}
		sink = NewRotatingFile(dir, 10*1024*1024)
		ws = sink
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, parseLevel(level).zap())
	// sink 写失败时 zap 会写入 ErrorOutput
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(zap.String("corr_id", corrID))
	return &Logger{z: z, sink: sink}
}

// NewWithCore 使用外部 core 构造（测试观测用）。
func NewWithCore(corrID string, core zapcore.Core) *Logger {
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

// Nop 返回丢弃一切输出的日志器。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.MessageKey = "msg"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	return cfg
}

// Sync 刷新缓冲并关闭文件 sink。
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Event 为标准事件结构。
type Event struct {
	Comp   string
	Stage  string // start|finish|error|warn
	Code   string
	DurMS  int64
	Count  int64
	FileID string
	Item   string
	Msg    string
	KV     map[string]string
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || l.z == nil {
		return
	}
	ce := l.z.Check(lv.zap(), ev.Msg)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, 8)
	fields = append(fields, zap.String("comp", ev.Comp), zap.String("stage", ev.Stage))
	if ev.Code != "" {
		fields = append(fields, zap.String("code", ev.Code))
	}
	if ev.DurMS != 0 {
		fields = append(fields, zap.Int64("dur_ms", ev.DurMS))
	}
	if ev.Count != 0 {
		fields = append(fields, zap.Int64("count", ev.Count))
	}
	if ev.FileID != "" {
		fields = append(fields, zap.String("file_id", ev.FileID))
	}
	if ev.Item != "" {
		fields = append(fields, zap.String("item", ev.Item))
	}
	if len(ev.KV) > 0 {
		fields = append(fields, zap.Any("kv", ev.KV))
	}
	ce.Write(fields...)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file_id/item 的 start。
func (l *Logger) StartWith(comp, msg, fileID, item string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", FileID: fileID, Item: item, Msg: msg})
	return &Timer{l: l, comp: comp, fileID: fileID, item: item, t0: time.Now()}
}

// StartWithKV 记录带 file_id/item 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID, item string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", FileID: fileID, Item: item, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, item: item, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWith 支持 file_id/item。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID, item string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, item, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID, item string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, FileID: fileID, Item: item, KV: kv})
}

// WarnWithKV 记录已降级的局部失败（记录仍会产出）。
func (l *Logger) WarnWithKV(comp, code, msg, fileID, item string, kv map[string]string) {
	l.log(Warn, Event{Comp: comp, Stage: "warn", Code: code, Msg: msg, FileID: fileID, Item: item, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的“start”类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID, item string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", FileID: fileID, Item: item, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	item   string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, FileID: t.fileID, Item: t.item, Msg: msg})
}

// Since 返回计时起点（供 Error 的 durSince 使用）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}
