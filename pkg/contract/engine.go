package contract

import "context"

// Engine: 文本预处理引擎（通常为进程级原生库的封装）。
// 约束：
//  1. LoadModel 在任何 PreProcess 之前调用一次；idx 为模型槽位（观测用法恒为 0）；
//  2. PreProcess 同步返回，输入/输出均为原始字节串，不做额外清洗；
//  3. 实现不得在内部起并发；调用方保证同一时刻只有一个调用；
//  4. Close 释放底层句柄，之后的调用行为未定义。
type Engine interface {
	LoadModel(ctx context.Context, path string, idx int) error
	PreProcess(ctx context.Context, text string) (string, error)
	Close() error
}

// Predictor: 可选扩展。引擎若支持分类预测（top-k 标签），实现该接口。
type Predictor interface {
	Predict(ctx context.Context, text string, k, idx int) (string, error)
}

// PredictSupport: 可选。Predictor 的能力取决于运行期（如原生库是否导出 Predict）时实现，
// 供调用方在 LoadModel 之前确认。
type PredictSupport interface {
	HasPredict() bool
}
