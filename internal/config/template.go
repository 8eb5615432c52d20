package config

import "encoding/json"

// DefaultTemplateConfig 返回可直接运行的配置模板（init-config 写出）：
// 使用 mock 引擎以便离线试跑；切换到真实库时把 components.engine 改为 native 即可。
// 各组件 Options 给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := d
	cfg.Components.Engine = "mock"
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git"],
  "skip_hidden": false
}`)
	cfg.Options.Splitter = json.RawMessage(`{
  "encoding": "std",
  "skip_blank": false,
  "buf_size": 65536
}`)
	cfg.Options.Engine = json.RawMessage(`{
  "mode": "prefix",
  "prefix": "MOCK",
  "fail_on": ""
}`)
	cfg.Options.Assembler = json.RawMessage(`{
  "separator": "\t",
  "hide_original": false
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "buf_size": 65536
}`)
	return cfg
}
