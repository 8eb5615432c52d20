package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs []string `json:"inputs"`
	// Library 为原生预处理库路径，仅 native 引擎使用。
	Library string `json:"library"`
	// Model 与 ModelIndex 传给 LoadModel；整个进程只加载一次。
	Model      string `json:"model"`
	ModelIndex int    `json:"model_index"`
	// PredictK>0 时为每条记录追加 top-k 预测行。
	PredictK int     `json:"predict_k"`
	Logging  Logging `json:"logging"`
	// MetricsFile 非空时，运行结束后以 textfile 格式写出全部指标。
	MetricsFile string `json:"metrics_file"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录；轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string `json:"reader"`
	Splitter  string `json:"splitter"`
	Engine    string `json:"engine"`
	Assembler string `json:"assembler"`
	Writer    string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader    json.RawMessage `json:"reader"`
	Splitter  json.RawMessage `json:"splitter"`
	Engine    json.RawMessage `json:"engine"`
	Assembler json.RawMessage `json:"assembler"`
	Writer    json.RawMessage `json:"writer"`
}
