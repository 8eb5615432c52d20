// Package native 通过 dlopen 绑定预编译的 fastText 预处理库（fasttext.so）。
//
// 库导出的 C ABI：
//
//	void        LoadModel(char* file_path, int idx);
//	const char* PreProcess(char* text, int length);
//	const char* Predict(char* input_text, int k, int idx);   // 可选
//
// 原生库持有进程级模型状态：LoadModel 写入一次，其后 PreProcess/Predict 只读。
// Library 是该状态在 Go 侧的唯一属主；所有调用经互斥锁串行化。
package native

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"ftprep/pkg/contract"
)

// DefaultLibrary 为默认库路径（相对工作目录）。
const DefaultLibrary = "./fasttext.so"

// 导出符号名。
const (
	symLoadModel  = "LoadModel"
	symPreProcess = "PreProcess"
	symPredict    = "Predict"
)

// Options: 原生引擎配置。
type Options struct {
	// Library: 共享库路径；为空时使用 DefaultLibrary。
	Library string `json:"library"`
}

// Library 为已打开的原生库句柄。
type Library struct {
	mu     sync.Mutex
	path   string
	sym    symbols
	open   bool
	loaded bool
	model  string
}

var (
	_ contract.Engine    = (*Library)(nil)
	_ contract.Predictor = (*Library)(nil)
)

// New 按 Options 打开原生库。
func New(opts *Options) (*Library, error) {
	p := DefaultLibrary
	if opts != nil && strings.TrimSpace(opts.Library) != "" {
		p = strings.TrimSpace(opts.Library)
	}
	return Open(p)
}

// Open 加载共享库并解析导出符号。LoadModel 与 PreProcess 为必需，Predict 可缺省。
func Open(path string) (*Library, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty library path", contract.ErrInvalidInput)
	}
	sym, err := dlOpen(path)
	if err != nil {
		return nil, err
	}
	return &Library{path: path, sym: sym, open: true}, nil
}

// HasPredict 报告库是否导出 Predict；流水线在 LoadModel 之前据此拒绝 predict_k>0。
func (l *Library) HasPredict() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open && l.sym.hasPredict()
}

// LoadModel 将模型文件载入原生库的槽位 idx。
// 原生侧在文件缺失时会直接终止进程，因此这里先行检查文件可读。
func (l *Library) LoadModel(ctx context.Context, path string, idx int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if idx < 0 || idx > math.MaxInt32 {
		return fmt.Errorf("%w: model index %d out of int32 range", contract.ErrInvalidInput, idx)
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty model path", contract.ErrInvalidInput)
	}
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	if st.IsDir() {
		return fmt.Errorf("%w: model path %s is a directory", contract.ErrInvalidInput, path)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return fmt.Errorf("%w: library closed", contract.ErrLibraryUnavailable)
	}
	l.sym.loadModel(path, idx)
	l.loaded = true
	l.model = path
	return nil
}

// PreProcess 调用原生 PreProcess，返回值在返回前已复制为 Go 字符串。
func (l *Library) PreProcess(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(text) > math.MaxInt32 {
		return "", fmt.Errorf("%w: text length %d exceeds int32", contract.ErrInvalidInput, len(text))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ready(); err != nil {
		return "", err
	}
	out, ok := l.sym.preProcess(text)
	if !ok {
		return "", fmt.Errorf("%w: PreProcess returned NULL", contract.ErrNativeCall)
	}
	return out, nil
}

// Predict 调用原生 Predict（top-k 标签）。
func (l *Library) Predict(ctx context.Context, text string, k, idx int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if k <= 0 || k > math.MaxInt32 || idx < 0 || idx > math.MaxInt32 {
		return "", fmt.Errorf("%w: k=%d idx=%d out of range", contract.ErrInvalidInput, k, idx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ready(); err != nil {
		return "", err
	}
	if !l.sym.hasPredict() {
		return "", fmt.Errorf("%w: symbol %s not exported by %s", contract.ErrLibraryUnavailable, symPredict, l.path)
	}
	out, ok := l.sym.predict(text, k, idx)
	if !ok {
		return "", fmt.Errorf("%w: Predict returned NULL", contract.ErrNativeCall)
	}
	return out, nil
}

// Close 释放库句柄；重复调用安全。
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	l.open = false
	l.loaded = false
	return l.sym.close()
}

func (l *Library) ready() error {
	if !l.open {
		return fmt.Errorf("%w: library closed", contract.ErrLibraryUnavailable)
	}
	if !l.loaded {
		return contract.ErrModelNotLoaded
	}
	return nil
}
