package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ftprep/pkg/contract"
)

// Options: 离线调试配置（可选）。
type Options struct {
	// Mode: 预处理输出模式。
	//  - "" / "prefix": 输出 "<Prefix>: <text>"（默认）；
	//  - "identity": 原样返回；
	//  - "upper": 转大写（便于肉眼确认经过了引擎）。
	Mode string `json:"mode"`
	// Prefix: prefix 模式下的前缀，默认 "MOCK"。
	Prefix string `json:"prefix"`
	// FailOn: 文本包含该子串时返回 ErrNativeCall，用于演练首错终止。空表示不注入失败。
	FailOn string `json:"fail_on"`
	// RequireModel: 为 true 时在 LoadModel 前调用 PreProcess 返回 ErrModelNotLoaded。默认 true。
	RequireModel *bool `json:"require_model,omitempty"`
}

// Load 记录一次 LoadModel 调用。
type Load struct {
	Path string
	Idx  int
}

// Engine 为内存引擎，不触碰任何原生库或文件。
type Engine struct {
	mode         string
	prefix       string
	failOn       string
	requireModel bool

	mu     sync.Mutex
	loads  []Load
	calls  int
	closed bool
}

var (
	_ contract.Engine    = (*Engine)(nil)
	_ contract.Predictor = (*Engine)(nil)
)

// New 创建 mock 引擎。未知模式返回错误。
func New(opts *Options) (*Engine, error) {
	e := &Engine{mode: "prefix", prefix: "MOCK", requireModel: true}
	if opts == nil {
		return e, nil
	}
	switch m := strings.TrimSpace(opts.Mode); m {
	case "", "prefix":
	case "identity", "upper":
		e.mode = m
	default:
		return nil, fmt.Errorf("mock: unknown mode %q", opts.Mode)
	}
	if opts.Prefix != "" {
		e.prefix = opts.Prefix
	}
	e.failOn = opts.FailOn
	if opts.RequireModel != nil {
		e.requireModel = *opts.RequireModel
	}
	return e, nil
}

func (e *Engine) LoadModel(ctx context.Context, path string, idx int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if idx < 0 {
		return fmt.Errorf("%w: model index %d", contract.ErrInvalidInput, idx)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads = append(e.loads, Load{Path: path, Idx: idx})
	return nil
}

func (e *Engine) PreProcess(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(text); err != nil {
		return "", err
	}
	e.calls++
	switch e.mode {
	case "identity":
		return text, nil
	case "upper":
		return strings.ToUpper(text), nil
	default:
		return e.prefix + ": " + text, nil
	}
}

// Predict 返回固定标签，格式与 fastText 文本输出一致（label 与 k）。
func (e *Engine) Predict(ctx context.Context, text string, k, idx int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if k <= 0 || idx < 0 {
		return "", fmt.Errorf("%w: k=%d idx=%d", contract.ErrInvalidInput, k, idx)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(text); err != nil {
		return "", err
	}
	return fmt.Sprintf("__label__%s %d", strings.ToLower(e.prefix), k), nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Loads 返回 LoadModel 调用记录的副本。
func (e *Engine) Loads() []Load {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Load(nil), e.loads...)
}

// Calls 返回成功的 PreProcess 次数。
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Closed 报告 Close 是否已被调用。
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) check(text string) error {
	if e.closed {
		return fmt.Errorf("%w: engine closed", contract.ErrLibraryUnavailable)
	}
	if e.requireModel && len(e.loads) == 0 {
		return contract.ErrModelNotLoaded
	}
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return fmt.Errorf("%w: injected failure on %q", contract.ErrNativeCall, e.failOn)
	}
	return nil
}
