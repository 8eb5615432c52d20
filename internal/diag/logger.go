package diag

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogDir 为默认日志目录；单文件上限 10 MiB。
const (
	DefaultLogDir   = "logs"
	DefaultLogBytes = 10 * 1024 * 1024
)

// Logger 为结构化事件日志器：单行 JSON，写入轮转文件，不占用 stdout。
// 零值与 nil 均为 no-op。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewCorrID 返回一次运行的关联 ID（UUID v4）。
func NewCorrID() string { return uuid.NewString() }

// NewLogger 按 level 初始化，日志写入 dir（空则 logs），10 MiB 轮转。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultLogDir
	}
	sink := NewRotatingFile(dir, DefaultLogBytes)
	l := NewLoggerTo(corrID, level, sink)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入任意 WriteSyncer（测试或自定义落点）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	enc := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		NameKey:        zapcore.OmitKey,
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, ParseLevel(level))
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(zap.String("corr_id", corrID))
	return &Logger{z: z}
}

// ParseLevel 解析 debug|info|warn|error，未知值回落 info。
func ParseLevel(s string) zapcore.Level {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Close 刷新并关闭日志文件。
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

func (l *Logger) log(lv zapcore.Level, msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	if ce := l.z.Check(lv, msg); ce != nil {
		ce.Write(fields...)
	}
}

func eventFields(comp, stage, fileID string, kv map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 4)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if fileID != "" {
		fs = append(fs, zap.String("file_id", fileID))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", kv))
	}
	return fs
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWith(comp, msg, "")
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	l.log(zapcore.InfoLevel, msg, eventFields(comp, "start", fileID, nil)...)
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// DebugStart 仅在 level=debug 时输出。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.DebugLevel, msg, eventFields(comp, "start", fileID, kv)...)
}

// Error 记录 error 事件。
func (l *Logger) Error(comp string, code Code, msg string, since *time.Time) {
	l.ErrorWithKV(comp, code, msg, since, "", nil)
}

// ErrorWith 附带 file_id。
func (l *Logger) ErrorWith(comp string, code Code, msg string, since *time.Time, fileID string) {
	l.ErrorWithKV(comp, code, msg, since, fileID, nil)
}

// ErrorWithKV 附带 file_id 与键值（例如行号、符号名）。
func (l *Logger) ErrorWithKV(comp string, code Code, msg string, since *time.Time, fileID string, kv map[string]string) {
	fs := eventFields(comp, "error", fileID, kv)
	fs = append(fs, zap.String("code", string(code)))
	if since != nil {
		fs = append(fs, zap.Int64("dur_ms", time.Since(*since).Milliseconds()))
	}
	l.log(zapcore.ErrorLevel, msg, fs...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；count 可选（0 不输出）。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	fs := eventFields(t.comp, "finish", t.fileID, nil)
	fs = append(fs, zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()))
	if count > 0 {
		fs = append(fs, zap.Int64("count", count))
	}
	t.l.log(zapcore.InfoLevel, msg, fs...)
}
